package gateway

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

// discordLimit is the longest message content Discord accepts.
const discordLimit = 2000

// DiscordGateway answers messages in any channel the bot can read.
type DiscordGateway struct {
	Session  *discordgo.Session
	Commands *Commands
}

func NewDiscordGateway(token string, commands *Commands) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	return &DiscordGateway{Session: session, Commands: commands}, nil
}

func (d *DiscordGateway) Start(ctx context.Context) error {
	d.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		log.Printf("[discord:%s] %s", m.Author.Username, m.Content)
		go d.Commands.Handle(ctx, "discord:"+m.ChannelID, m.Content, func(text string) {
			if err := d.Send(m.ChannelID, text); err != nil {
				log.Printf("Error replying on discord: %v", err)
			}
		})
	})

	if err := d.Session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	<-ctx.Done()
	return nil
}

// Send posts text to a channel id.
func (d *DiscordGateway) Send(channelID string, text string) error {
	for _, part := range splitMessage(text, discordLimit) {
		if _, err := d.Session.ChannelMessageSend(channelID, part); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiscordGateway) Stop() error {
	return d.Session.Close()
}
