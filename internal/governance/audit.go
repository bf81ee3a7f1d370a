package governance

import (
	"context"

	"github.com/rahul/delver/internal/observability"
)

// Audited logs a policy_check event for every evaluation of Inner.
type Audited struct {
	Inner  PolicyEngine
	Logger *observability.Logger
}

func (a Audited) Evaluate(ctx context.Context, req Request) (Result, error) {
	res, err := a.Inner.Evaluate(ctx, req)
	chatID, runID := observability.RunFrom(ctx)
	if runID == "" {
		runID = req.RunID
	}
	effect, reason := string(res.Effect), res.Reason
	if err != nil {
		effect, reason = string(EffectDeny), err.Error()
	}
	a.Logger.LogPolicyCheck(chatID, runID, req.Action, req.Target, effect, reason)
	return res, err
}
