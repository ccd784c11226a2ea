package agent

import (
	"context"
	"testing"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

func TestScriptedReplaysAndRepeatsLastStep(t *testing.T) {
	a := NewScripted(0,
		ScriptedStep{Response: &Response{Text: "one", Tokens: types.TokenBreakdown{Output: 1}}},
		ScriptedStep{Response: &Response{Text: "two", Tokens: types.TokenBreakdown{Output: 1}}},
	)
	ctx := context.Background()

	for _, want := range []string{"one", "two", "two", "two"} {
		resp, err := a.Send(ctx, Request{Prompt: "p", IdempotencyToken: "tok"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Text != want {
			t.Fatalf("expected %q, got %q", want, resp.Text)
		}
	}
	if a.Calls() != 4 {
		t.Fatalf("expected 4 calls, got %d", a.Calls())
	}
	if len(a.Requests()) != 4 {
		t.Fatalf("expected 4 recorded requests")
	}
}

func TestScriptedErrorStep(t *testing.T) {
	a := NewScripted(0, ScriptedStep{Err: errorkit.New(errorkit.KindUnavailable, "down")})
	_, err := a.Send(context.Background(), Request{})
	if !errorkit.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestScriptedCancelledContext(t *testing.T) {
	a := NewScripted(0, ScriptedStep{Response: &Response{Text: "x"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Send(ctx, Request{})
	if !errorkit.IsCancelled(err) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestContextWindowPublication(t *testing.T) {
	if _, ok := NewScripted(0).ContextWindow(); ok {
		t.Fatal("zero window should not publish")
	}
	limit, ok := NewScripted(16_000).ContextWindow()
	if !ok || limit != 16_000 {
		t.Fatalf("expected published 16000, got %d %v", limit, ok)
	}
}
