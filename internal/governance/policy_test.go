package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rahul/delver/internal/observability"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	req1 := Request{Action: "search", Target: "golang generics"}
	res1, err := engine.Evaluate(ctx, req1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	engine.DenyAction("scrape")
	req2 := Request{Action: "scrape", Target: "https://example.com"}
	res2, err := engine.Evaluate(ctx, req2)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestDefaultPolicyEngine_DenyTargets(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyTargets(`^https?://(www\.)?internal\.`); err != nil {
		t.Fatalf("DenyTargets failed: %v", err)
	}

	res, _ := engine.Evaluate(context.Background(), Request{Action: "scrape", Target: "http://internal.corp/wiki"})
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny for internal host, got %s", res.Effect)
	}

	res, _ = engine.Evaluate(context.Background(), Request{Action: "scrape", Target: "https://go.dev/doc"})
	if res.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow for public host, got %s", res.Effect)
	}

	// empty targets never match a pattern
	res, _ = engine.Evaluate(context.Background(), Request{Action: "summarize"})
	if res.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow for empty target, got %s", res.Effect)
	}
}

func TestFromRules(t *testing.T) {
	engine, err := FromRules([]string{"search"}, []string{"casino"})
	if err != nil {
		t.Fatalf("FromRules failed: %v", err)
	}
	res, _ := engine.Evaluate(context.Background(), Request{Action: "search", Target: "anything"})
	if res.Effect != EffectDeny {
		t.Errorf("Expected denied action, got %s", res.Effect)
	}
	res, _ = engine.Evaluate(context.Background(), Request{Action: "scrape", Target: "https://casino.example"})
	if res.Effect != EffectDeny {
		t.Errorf("Expected denied pattern, got %s", res.Effect)
	}

	if _, err := FromRules(nil, []string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestAuditedLogsEveryCheck(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.Options{Output: &buf})
	inner, err := FromRules([]string{"scrape"}, nil)
	if err != nil {
		t.Fatalf("FromRules: %v", err)
	}
	audited := Audited{Inner: inner, Logger: logger}

	res, err := audited.Evaluate(context.Background(), Request{Action: "scrape", Target: "https://example.com", RunID: "run-3"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Effect != EffectDeny {
		t.Errorf("expected deny, got %s", res.Effect)
	}
	logger.Sync()

	var evt map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &evt); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if evt["type"] != "policy_check" || evt["task_id"] != "run-3" {
		t.Errorf("unexpected event: %v", evt)
	}
	data, _ := evt["data"].(map[string]any)
	if data["effect"] != "deny" || data["target"] != "https://example.com" {
		t.Errorf("unexpected data: %v", data)
	}
}
