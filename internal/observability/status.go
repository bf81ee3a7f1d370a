package observability

import (
	"sync"
	"time"
)

// Phase is what the agent is busy with.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhasePlanner  Phase = "PLANNER"
	PhaseExecutor Phase = "EXECUTOR"
)

// Snapshot is a point-in-time copy of the agent's status.
type Snapshot struct {
	Phase         Phase
	Query         string
	ActiveRuns    int
	CompletedRuns int
	Steps         int
	LastHeartbeat time.Time
}

type systemStatus struct {
	mu sync.RWMutex
	s  Snapshot
}

var globalStatus = &systemStatus{
	s: Snapshot{Phase: PhaseIdle, LastHeartbeat: time.Now()},
}

// SetStatus records the phase of the most recent run and its query.
func SetStatus(phase Phase, query string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.s.Phase = phase
	globalStatus.s.Query = query
}

// RunStarted and RunFinished track how many research runs are in flight.
func RunStarted() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.s.ActiveRuns++
}

func RunFinished() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if globalStatus.s.ActiveRuns > 0 {
		globalStatus.s.ActiveRuns--
	}
	globalStatus.s.CompletedRuns++
	if globalStatus.s.ActiveRuns == 0 {
		globalStatus.s.Phase = PhaseIdle
		globalStatus.s.Query = ""
	}
}

// StepExecuted counts one executed plan step.
func StepExecuted() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.s.Steps++
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.s.LastHeartbeat = time.Now()
}

// Status returns a copy of the global status.
func Status() Snapshot {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.s
}
