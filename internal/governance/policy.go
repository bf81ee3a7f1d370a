package governance

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a step about to be dispatched.
type Request struct {
	Action string
	Target string // search query or URL, empty for actions without one
	RunID  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine decides whether a step may reach its provider.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by action name or by a pattern over the target.
type DefaultPolicyEngine struct {
	mu             sync.RWMutex
	DeniedActions  map[string]bool
	DeniedPatterns []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedActions:  make(map[string]bool),
		DeniedPatterns: make([]*regexp.Regexp, 0),
	}
}

// FromRules builds an engine from configured action names and target patterns.
func FromRules(actions, patterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, a := range actions {
		e.DenyAction(a)
	}
	for _, p := range patterns {
		if err := e.DenyTargets(p); err != nil {
			return nil, fmt.Errorf("governance pattern %q: %w", p, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyAction(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedActions[name] = true
}

func (e *DefaultPolicyEngine) DenyTargets(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedPatterns = append(e.DeniedPatterns, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.DeniedActions[req.Action] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("action '%s' is restricted by system policy", req.Action),
		}, nil
	}

	if req.Target != "" {
		for _, re := range e.DeniedPatterns {
			if re.MatchString(req.Target) {
				return Result{
					Effect: EffectDeny,
					Reason: fmt.Sprintf("target matches restricted pattern: %s", re.String()),
				}, nil
			}
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
