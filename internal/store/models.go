package store

import (
	"encoding/json"
	"time"
)

// Run is a completed research run as persisted.
type Run struct {
	ID          string          `json:"id"`
	ChatID      string          `json:"chat_id"`
	Query       string          `json:"query"`
	FinalAnswer string          `json:"final_answer"`
	Record      json.RawMessage `json:"record"` // the ResearchResult document
	CreatedAt   time.Time       `json:"created_at"`
}

// Task is a recurring research query owned by a chat.
type Task struct {
	ID       int64     `json:"id"`
	ChatID   string    `json:"chat_id"`
	Query    string    `json:"query"`
	CronSpec string    `json:"cron_spec"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run,omitempty"`
}
