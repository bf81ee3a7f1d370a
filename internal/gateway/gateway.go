package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/rahul/delver/internal/agent"
	"github.com/rahul/delver/internal/engine"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop and blocks until ctx ends
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

const helpText = `Send me a question and I will research it on the web.

Commands:
/schedule <cron> | <question>  research on a schedule, e.g. /schedule 0 9 * * * | AI news
/tasks                          list scheduled research
/unschedule <id>                remove a scheduled task
/clear                          remove all scheduled tasks`

// Commands turns chat messages into research runs and schedule changes.
// Gateways call Handle for every incoming message.
type Commands struct {
	Runner    agent.Runner
	Scheduler *agent.Scheduler
}

// Handle processes one message and sends replies through reply.
func (c *Commands) Handle(ctx context.Context, chatID, text string, reply func(string)) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	cmd, args, _ := strings.Cut(text, " ")
	// Telegram appends @botname to commands in groups.
	cmd, _, _ = strings.Cut(cmd, "@")

	switch cmd {
	case "/start", "/help":
		reply(helpText)
	case "/schedule":
		reply(c.schedule(ctx, chatID, args))
	case "/tasks":
		reply(c.tasks(ctx, chatID))
	case "/unschedule":
		reply(c.unschedule(ctx, chatID, args))
	case "/clear":
		reply(c.clear(ctx, chatID))
	default:
		c.research(ctx, chatID, text, reply)
	}
}

func (c *Commands) research(ctx context.Context, chatID, query string, reply func(string)) {
	reply("🔎 Researching: " + query)
	result, err := c.Runner.Research(ctx, chatID, query, func(e engine.Event) {
		if e.Kind == engine.EventStatus && e.Status != engine.StatusOK {
			log.Printf("[%s] %s", chatID, e.Data)
		}
	})
	if err != nil {
		log.Printf("Error researching: %v", err)
		reply("I'm having trouble researching that right now...")
		return
	}
	reply(agent.FormatResult(result))
}

func (c *Commands) schedule(ctx context.Context, chatID, args string) string {
	if c.Scheduler == nil {
		return "Scheduling is not enabled."
	}
	spec, query, ok := strings.Cut(args, "|")
	if !ok || strings.TrimSpace(query) == "" {
		return "Usage: /schedule <cron> | <question>"
	}
	task, err := c.Scheduler.Schedule(ctx, chatID, spec, query)
	if err != nil {
		return "Could not schedule: " + err.Error()
	}
	return fmt.Sprintf("Scheduled task %d (%s), next run %s.", task.ID, task.CronSpec, task.NextRun.Format("2006-01-02 15:04 MST"))
}

func (c *Commands) tasks(ctx context.Context, chatID string) string {
	if c.Scheduler == nil {
		return "Scheduling is not enabled."
	}
	tasks, err := c.Scheduler.Tasks(ctx, chatID)
	if err != nil {
		return "Could not list tasks: " + err.Error()
	}
	if len(tasks) == 0 {
		return "No scheduled research."
	}
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "%d. [%s] %s (next %s)\n", t.ID, t.CronSpec, t.Query, t.NextRun.Format("2006-01-02 15:04 MST"))
	}
	return strings.TrimSpace(b.String())
}

func (c *Commands) unschedule(ctx context.Context, chatID, args string) string {
	if c.Scheduler == nil {
		return "Scheduling is not enabled."
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return "Usage: /unschedule <id>"
	}
	if err := c.Scheduler.Unschedule(ctx, chatID, id); err != nil {
		return "Could not remove task: " + err.Error()
	}
	return fmt.Sprintf("Removed task %d.", id)
}

func (c *Commands) clear(ctx context.Context, chatID string) string {
	if c.Scheduler == nil {
		return "Scheduling is not enabled."
	}
	if err := c.Scheduler.Clear(ctx, chatID); err != nil {
		return "Could not clear tasks: " + err.Error()
	}
	return "All scheduled research removed."
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// line boundaries.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// Multi fans Send out to the gateway that owns a chat id. Chat ids are
// prefixed by gateway name ("discord:123"); unprefixed ids go to the
// default gateway.
type Multi struct {
	Default  Messenger
	Prefixed map[string]Messenger
}

func (m *Multi) Send(chatID, text string) error {
	if prefix, id, ok := strings.Cut(chatID, ":"); ok {
		if gw, found := m.Prefixed[prefix]; found {
			return gw.Send(id, text)
		}
	}
	if m.Default == nil {
		return errors.New("no gateway for chat " + chatID)
	}
	return m.Default.Send(chatID, text)
}
