package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramLimit is the longest message text Telegram accepts.
const telegramLimit = 4096

type TelegramGateway struct {
	Bot      *tgbotapi.BotAPI
	Commands *Commands
}

func NewTelegramGateway(token string, commands *Commands) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:      bot,
		Commands: commands,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			if update.Message.From != nil {
				log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
			}

			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			// Runs take minutes; one goroutine per message keeps the update
			// loop responsive.
			go tg.Commands.Handle(ctx, chatID, update.Message.Text, func(text string) {
				if err := tg.send(update.Message.Chat.ID, text, ""); err != nil {
					log.Printf("Error replying on telegram: %v", err)
				}
			})
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	return tg.send(id, text, tgbotapi.ModeMarkdown) // Enable markdown for better alerts
}

func (tg *TelegramGateway) send(id int64, text, mode string) error {
	for _, part := range splitMessage(text, telegramLimit) {
		msg := tgbotapi.NewMessage(id, part)
		msg.ParseMode = mode
		if _, err := tg.Bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
