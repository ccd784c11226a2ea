// Package agent defines the Agent capability the execution loop
// consumes. The concrete agent binary is out of the
// core's scope; variants are selected at construction time from
// configuration. A deterministic scripted implementation lives here
// for tests and degraded-mode operation.
package agent

import (
	"context"
	"sync"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// Request is one dispatch to the agent. IdempotencyToken is supplied
// per iteration so retried dispatches are idempotent on the agent
// side.
type Request struct {
	Prompt           string
	Context          map[string]string
	IdempotencyToken string
}

// Response is the agent's reply with its four-way token breakdown.
type Response struct {
	Text     string
	Tokens   types.TokenBreakdown
	Metadata map[string]string
	// Files lists workspace paths the agent reports having created or
	// modified during this turn, consumed by deliverable assessment.
	Files []string
}

// Agent is the external code-generation capability. Send blocks until
// the agent replies or ctx expires; failures carry one of the kinds
// Timeout, Unavailable, ProtocolError, or Cancelled.
type Agent interface {
	Send(ctx context.Context, req Request) (*Response, error)

	// ContextWindow returns the agent's published token limit, if it
	// publishes one.
	ContextWindow() (limit int64, ok bool)
}

// ScriptedStep is one canned reply for the Scripted agent.
type ScriptedStep struct {
	Response *Response
	Err      error
}

// Scripted replays a fixed sequence of responses, one per Send, then
// repeats its last step. It also records every request it saw, so
// tests can assert on prompt content and idempotency tokens.
type Scripted struct {
	mu       sync.Mutex
	steps    []ScriptedStep
	calls    int
	requests []Request
	window   int64
}

// NewScripted builds a scripted agent. window <= 0 means the agent
// does not publish a context window.
func NewScripted(window int64, steps ...ScriptedStep) *Scripted {
	return &Scripted{steps: steps, window: window}
}

func (s *Scripted) Send(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errorkit.WrapAs("agent.Send", errorkit.KindCancelled, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return nil, errorkit.New(errorkit.KindUnavailable, "scripted agent has no steps")
	}
	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.calls++
	step := s.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	// Copy so callers mutating the response do not corrupt the script.
	resp := *step.Response
	return &resp, nil
}

func (s *Scripted) ContextWindow() (int64, bool) {
	if s.window <= 0 {
		return 0, false
	}
	return s.window, true
}

// Calls returns how many times Send was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Requests returns a copy of every request seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
