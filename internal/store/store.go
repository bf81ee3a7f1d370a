package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound is returned when a run or task id does not exist.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed width so stored timestamps compare as strings.
const timeLayout = "2006-01-02T15:04:05Z"

type Store struct {
	DB *sql.DB
}

// Open opens (creating if needed) the sqlite database at dbPath. Use
// ":memory:" for a throwaway store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent and
	// serialises writers.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS research_runs (
			id TEXT PRIMARY KEY,
			chat_id TEXT,
			query TEXT,
			final_answer TEXT,
			record TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON research_runs(created_at);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			query TEXT,
			cron_spec TEXT,
			next_run TEXT,
			last_run TEXT DEFAULT '',
			status TEXT DEFAULT 'active'
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(ctx context.Context, r Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	query := `INSERT OR REPLACE INTO research_runs (id, chat_id, query, final_answer, record, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query, r.ID, r.ChatID, r.Query, r.FinalAnswer, string(r.Record), formatTime(r.CreatedAt))
	return err
}

// ListRuns returns the most recent runs first. An empty chatID lists runs
// from every chat.
func (s *Store) ListRuns(ctx context.Context, chatID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, chat_id, query, final_answer, record, created_at FROM research_runs
		WHERE (? = '' OR chat_id = ?) ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, chatID, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	query := `SELECT id, chat_id, query, final_answer, record, created_at FROM research_runs WHERE id = ?`
	r, err := scanRun(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var record, created string
	if err := row.Scan(&r.ID, &r.ChatID, &r.Query, &r.FinalAnswer, &record, &created); err != nil {
		return Run{}, err
	}
	r.Record = []byte(record)
	r.CreatedAt = parseTime(created)
	return r, nil
}

// AddTask stores a recurring query and returns its id.
func (s *Store) AddTask(ctx context.Context, chatID, query, cronSpec string, nextRun time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO tasks (chat_id, query, cron_spec, next_run) VALUES (?, ?, ?, ?)`,
		chatID, query, cronSpec, formatTime(nextRun))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListTasks returns the active tasks of a chat.
func (s *Store) ListTasks(ctx context.Context, chatID string) ([]Task, error) {
	return s.queryTasks(ctx,
		`SELECT id, chat_id, query, cron_spec, next_run, last_run FROM tasks
		WHERE status = 'active' AND chat_id = ? ORDER BY id`, chatID)
}

// DueTasks returns active tasks whose next run is at or before now.
func (s *Store) DueTasks(ctx context.Context, now time.Time) ([]Task, error) {
	return s.queryTasks(ctx,
		`SELECT id, chat_id, query, cron_spec, next_run, last_run FROM tasks
		WHERE status = 'active' AND next_run <= ? ORDER BY next_run, id`, formatTime(now))
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		var next, last string
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Query, &t.CronSpec, &next, &last); err != nil {
			return nil, err
		}
		t.NextRun = parseTime(next)
		t.LastRun = parseTime(last)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkTaskRun records that a task ran at ran and is next due at next.
func (s *Store) MarkTaskRun(ctx context.Context, id int64, ran, next time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE tasks SET last_run = ?, next_run = ? WHERE id = ?`,
		formatTime(ran), formatTime(next), id)
	return err
}

// DeleteTask removes a task owned by chatID.
func (s *Store) DeleteTask(ctx context.Context, chatID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND chat_id = ?`, id, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClearTasks removes every task of a chat.
func (s *Store) ClearTasks(ctx context.Context, chatID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE chat_id = ?`, chatID)
	return err
}
