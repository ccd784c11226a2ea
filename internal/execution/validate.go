package execution

import (
	"encoding/json"
	"strings"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/agent"
)

// validateResponse runs the fast structural checks on an agent reply:
// no external calls, format-level only. A failed validation is
// retryable at the iteration level but never completes a task.
func validateResponse(resp *agent.Response) (ok bool, reason string) {
	if resp == nil {
		return false, "nil response"
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return false, "empty response"
	}
	// A reply that opens a JSON document must close it.
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		if !json.Valid([]byte(text)) {
			return false, "malformed JSON response"
		}
	}
	// Unterminated code fences indicate a truncated reply.
	if strings.Count(text, "```")%2 != 0 {
		return false, "unterminated code fence"
	}
	if resp.Tokens.Output <= 0 {
		return false, "agent reported no output tokens"
	}
	return true, ""
}
