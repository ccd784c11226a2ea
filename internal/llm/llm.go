// Package llm defines the Supervising LLM capability,
// used for validation assistance, summarization, and confidence
// scoring. Absence is tolerated: every consumer degrades to a
// deterministic fallback and records the degradation on the affected
// row.
package llm

import (
	"context"
	"strings"
	"sync"
)

// Options tunes a single Generate call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// LLM is the supervising language-model capability.
type LLM interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Available() bool
}

// Unavailable is the null capability: Available always reports false
// and Generate never succeeds. Components holding an Unavailable LLM
// take their deterministic fallback paths.
type Unavailable struct{}

func (Unavailable) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return "", context.Canceled
}

func (Unavailable) Available() bool { return false }

// Static replies with canned text keyed by a substring of the prompt,
// falling back to Default. Used in tests to simulate a cooperative
// supervisor without a runtime.
type Static struct {
	mu      sync.Mutex
	Replies map[string]string
	Default string
	calls   int
}

func (s *Static) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for key, reply := range s.Replies {
		if strings.Contains(prompt, key) {
			return reply, nil
		}
	}
	return s.Default, nil
}

func (s *Static) Available() bool { return true }

// Calls returns how many Generate calls have been made.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
