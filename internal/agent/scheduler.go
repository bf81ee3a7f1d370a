package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/internal/store"
	"github.com/robfig/cron/v3"
)

// DefaultPollInterval is how often the scheduler looks for due tasks.
const DefaultPollInterval = 30 * time.Second

// cronParser accepts standard 5-field expressions and descriptors such as
// @daily or @every 6h.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NextRun returns the first activation of spec after the given time.
func NextRun(spec string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched.Next(after), nil
}

type Messenger interface {
	Send(chatID string, text string) error
}

// Runner executes one research query.
type Runner interface {
	Research(ctx context.Context, chatID, query string, report engine.Reporter) (engine.ResearchResult, error)
}

type TaskStore interface {
	AddTask(ctx context.Context, chatID, query, cronSpec string, nextRun time.Time) (int64, error)
	ListTasks(ctx context.Context, chatID string) ([]store.Task, error)
	DueTasks(ctx context.Context, now time.Time) ([]store.Task, error)
	MarkTaskRun(ctx context.Context, id int64, ran, next time.Time) error
	DeleteTask(ctx context.Context, chatID string, id int64) error
	ClearTasks(ctx context.Context, chatID string) error
}

// Scheduler runs recurring research tasks and delivers their answers
// through the gateway.
type Scheduler struct {
	Runner   Runner
	Store    TaskStore
	Gateway  Messenger
	Interval time.Duration
	now      func() time.Time
}

func NewScheduler(runner Runner, store TaskStore, gateway Messenger) *Scheduler {
	return &Scheduler{
		Runner:   runner,
		Store:    store,
		Gateway:  gateway,
		Interval: DefaultPollInterval,
		now:      time.Now,
	}
}

// Schedule registers query to run on spec for chatID.
func (s *Scheduler) Schedule(ctx context.Context, chatID, spec, query string) (store.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return store.Task{}, fmt.Errorf("empty query")
	}
	next, err := NextRun(spec, s.now())
	if err != nil {
		return store.Task{}, err
	}
	id, err := s.Store.AddTask(ctx, chatID, query, strings.TrimSpace(spec), next)
	if err != nil {
		return store.Task{}, fmt.Errorf("save task: %w", err)
	}
	return store.Task{ID: id, ChatID: chatID, Query: query, CronSpec: strings.TrimSpace(spec), NextRun: next}, nil
}

func (s *Scheduler) Tasks(ctx context.Context, chatID string) ([]store.Task, error) {
	return s.Store.ListTasks(ctx, chatID)
}

func (s *Scheduler) Unschedule(ctx context.Context, chatID string, id int64) error {
	return s.Store.DeleteTask(ctx, chatID, id)
}

func (s *Scheduler) Clear(ctx context.Context, chatID string) error {
	return s.Store.ClearTasks(ctx, chatID)
}

// Start polls for due tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("Task scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	now := s.now()
	tasks, err := s.Store.DueTasks(ctx, now)
	if err != nil {
		log.Printf("Error polling tasks: %v", err)
		return
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}

		// Advance the schedule before running so a failing query waits for
		// its next slot instead of retrying every poll.
		next, err := NextRun(t.CronSpec, now)
		if err != nil {
			log.Printf("Dropping task %d with bad schedule: %v", t.ID, err)
			if err := s.Store.DeleteTask(ctx, t.ChatID, t.ID); err != nil {
				log.Printf("Error deleting task %d: %v", t.ID, err)
			}
			continue
		}
		if err := s.Store.MarkTaskRun(ctx, t.ID, now, next); err != nil {
			log.Printf("Error updating last run for task %d: %v", t.ID, err)
			continue
		}

		log.Printf("Executing scheduled task %d for chat %s: %s", t.ID, t.ChatID, t.Query)

		result, err := s.Runner.Research(ctx, t.ChatID, t.Query, nil)
		if err != nil {
			log.Printf("Error executing scheduled task %d: %v", t.ID, err)
			continue
		}

		if s.Gateway != nil {
			if err := s.Gateway.Send(t.ChatID, "⏰ *Scheduled Research*\n\n"+FormatResult(result)); err != nil {
				log.Printf("Error delivering task %d: %v", t.ID, err)
			}
		}
	}
}

// FormatResult renders a research result as chat markdown: the answer
// followed by the sources that were read.
func FormatResult(r engine.ResearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n%s", r.OriginalQuery, r.FinalAnswer)
	if len(r.SourcesUsed) > 0 {
		b.WriteString("\n\nSources:")
		for _, src := range r.SourcesUsed {
			fmt.Fprintf(&b, "\n- %s", src)
		}
	}
	return b.String()
}
