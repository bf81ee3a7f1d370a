package engine

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// ErrStepRecorded is returned when a step id already has an output.
var ErrStepRecorded = errors.New("step output already recorded")

// Phase is the scheduler state of a run.
type Phase string

const (
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

// RunState is the mutable record of one query's progress through its plan.
// Each run owns its own RunState; nothing is shared between runs.
type RunState struct {
	mu       sync.RWMutex
	id       string
	query    string
	plan     Plan
	results  Results
	cursor   int
	ticks    int
	answer   string
	answered bool
	phase    Phase
}

// NewRunState starts a run of plan for query. An empty plan is finished
// from the start.
func NewRunState(id, query string, plan Plan) *RunState {
	st := &RunState{
		id:      id,
		query:   query,
		plan:    plan,
		results: make(Results, len(plan)),
		phase:   PhaseRunning,
	}
	if len(plan) == 0 {
		st.phase = PhaseFinished
	}
	return st
}

func (s *RunState) ID() string    { return s.id }
func (s *RunState) Query() string { return s.query }
func (s *RunState) Plan() Plan    { return s.plan }

// Cursor is the index of the next step to execute.
func (s *RunState) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Ticks is how many steps have been executed so far.
func (s *RunState) Ticks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks
}

// Phase reports whether the run is still going.
func (s *RunState) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Finished reports whether no further step may run.
func (s *RunState) Finished() bool {
	return s.Phase() == PhaseFinished
}

// FinalAnswer returns the answer, if one has been set.
func (s *RunState) FinalAnswer() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answer, s.answered
}

// Output returns the recorded output of a step.
func (s *RunState) Output(id string) (StepOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.results[id]
	return out, ok
}

// Results returns a copy of everything recorded so far.
func (s *RunState) Results() Results {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.results)
}

func (s *RunState) current() (Step, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase == PhaseFinished || s.cursor >= len(s.plan) {
		return Step{}, false
	}
	return s.plan[s.cursor], true
}

// record stores out under id. Each id is written at most once.
func (s *RunState) record(id string, out StepOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; ok {
		return fmt.Errorf("%w: %s", ErrStepRecorded, id)
	}
	s.results[id] = out
	return nil
}

// advance moves the cursor past the current step and counts the tick.
func (s *RunState) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	if s.cursor < len(s.plan) {
		s.cursor++
	}
}

// terminate counts the tick that ran a finish step and ends the run with
// answer. The cursor stays on the finishing step.
func (s *RunState) terminate(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	if !s.answered {
		s.answer, s.answered = answer, true
	}
	s.phase = PhaseFinished
}

// finish ends the run without a finish step. The answer falls back to the
// summary of the last executed step, if it produced one.
func (s *RunState) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseFinished
	if s.answered || s.cursor == 0 {
		return
	}
	last := s.plan[s.cursor-1]
	if out, ok := s.results[last.ID]; ok && out.OK() && out.Summary != "" {
		s.answer, s.answered = out.Summary, true
	}
}
