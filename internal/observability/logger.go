package observability

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeLLM         EventType = "llm"
	EventTypeResult      EventType = "result"
	EventTypeError       EventType = "error"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures a Logger.
type Options struct {
	Level  string    // debug, info, warn or error
	Dir    string    // directory for llm.jsonl, "" disables the file
	Output io.Writer // event stream, stdout when nil
}

// Logger emits structured events through zap and keeps a rotated file of
// every model exchange.
type Logger struct {
	z          *zap.Logger
	mu         sync.Mutex
	llmLogPath string
	maxSize    int64
}

func NewLogger(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Level != "" {
		if parsed, err := zapcore.ParseLevel(opts.Level); err == nil {
			level.SetLevel(parsed)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(out), level)

	l := &Logger{
		z:       zap.New(core),
		maxSize: 10 * 1024 * 1024, // 10MB
	}
	if opts.Dir != "" {
		l.llmLogPath = filepath.Join(opts.Dir, "llm.jsonl")
	}
	return l
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{z: zap.NewNop()}
}

// Zap exposes the underlying logger for packages that log free-form
// diagnostics.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.z.Sync()
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	fields := []zap.Field{zap.String("type", string(evt.Type))}
	if evt.ChatID != "" {
		fields = append(fields, zap.String("chat_id", evt.ChatID))
	}
	if evt.TaskID != "" {
		fields = append(fields, zap.String("task_id", evt.TaskID))
	}
	fields = append(fields, zap.Any("data", evt.Data))

	switch evt.Type {
	case EventTypeError:
		l.z.Error(string(evt.Type), fields...)
	case EventTypeLLM, EventTypeHeartbeat:
		l.z.Debug(string(evt.Type), fields...)
	default:
		l.z.Info(string(evt.Type), fields...)
	}

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			log.Printf("failed to marshal llm event: %v", err)
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(chatID, runID string, plan any, fallback bool) {
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: chatID,
		TaskID: runID,
		Data: map[string]any{
			"steps":    plan,
			"fallback": fallback,
		},
	})
}

func (l *Logger) LogStep(chatID, runID, stepID, action, status, reason string) {
	data := map[string]string{
		"step":   stepID,
		"action": action,
		"status": status,
	}
	if reason != "" {
		data["reason"] = reason
	}
	l.Log(Event{Type: EventTypeStep, ChatID: chatID, TaskID: runID, Data: data})
}

func (l *Logger) LogToolCall(chatID, runID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		ChatID: chatID,
		TaskID: runID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(chatID, runID, tool string, result any, err error) {
	data := map[string]any{"tool": tool, "result": result}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Log(Event{Type: EventTypeToolResult, ChatID: chatID, TaskID: runID, Data: data})
}

func (l *Logger) LogPolicyCheck(chatID, runID, action, target, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		ChatID: chatID,
		TaskID: runID,
		Data: map[string]string{
			"action": action,
			"target": target,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogResult(chatID, runID string, result any) {
	l.Log(Event{Type: EventTypeResult, ChatID: chatID, TaskID: runID, Data: result})
}

func (l *Logger) LogError(chatID, runID string, err error) {
	l.Log(Event{
		Type:   EventTypeError,
		ChatID: chatID,
		TaskID: runID,
		Data:   map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(chatID, runID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		TaskID: runID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}

type runKey struct{}

type runIDs struct{ chatID, runID string }

// WithRun tags ctx with the chat and run a call belongs to, so providers
// deep in the call chain can label their events.
func WithRun(ctx context.Context, chatID, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runIDs{chatID: chatID, runID: runID})
}

// RunFrom returns the ids stored by WithRun.
func RunFrom(ctx context.Context) (chatID, runID string) {
	ids, _ := ctx.Value(runKey{}).(runIDs)
	return ids.chatID, ids.runID
}
