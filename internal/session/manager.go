// Package session is the context-window manager: it
// owns each execution session's cumulative token ledger, derives the
// utilization zone, and triggers summarize-and-refresh before the
// agent's window fills. Per-session state lives under a mutex with
// the ledger persisted through the store rather than held only in
// memory.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/eventbus"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/llm"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/metrics"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// DefaultWindowLimit applies when neither the agent nor configuration
// supplies a limit. Conservative: small local models commonly run 16k
// windows, so over-estimating risks hard truncation mid-iteration.
const DefaultWindowLimit = 16_000

// modelWindowLimits is the model-config map consulted when the agent
// does not publish a limit. Keys
// are matched as lowercase substrings of the configured model name.
var modelWindowLimits = map[string]int64{
	"claude":  200_000,
	"gpt-4":   128_000,
	"llama":   32_000,
	"qwen":    32_000,
	"mistral": 32_000,
	"phi":     16_000,
}

// WindowPublisher is the slice of the Agent capability the manager
// needs for limit discovery; the execution loop passes its agent in.
type WindowPublisher interface {
	ContextWindow() (int64, bool)
}

// Manager tracks sessions, their ledgers, and refresh policy.
type Manager struct {
	store store.Store
	llm   llm.LLM
	bus   *eventbus.Bus
	log   *slog.Logger

	mu sync.Mutex
	// checkpointIndex tracks the next checkpoint index per session so
	// appends stay monotonic without a count query per checkpoint.
	checkpointIndex map[string]int
}

// NewManager wires the manager's collaborators. llm may be an
// llm.Unavailable; bus may be nil.
func NewManager(s store.Store, l llm.LLM, bus *eventbus.Bus, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if l == nil {
		l = llm.Unavailable{}
	}
	return &Manager{store: s, llm: l, bus: bus, log: log, checkpointIndex: make(map[string]int)}
}

// ResolveLimit performs window-size discovery: the
// agent's published limit wins, then the configured integer, then the
// model-config map keyed by modelName, then the conservative default.
func ResolveLimit(pub WindowPublisher, modelName string) int64 {
	if pub != nil {
		if limit, ok := pub.ContextWindow(); ok && limit > 0 {
			return limit
		}
	}
	if raw := config.GetContextWindowLimitSetting(); raw != "" && raw != config.AutoLimit {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	lower := strings.ToLower(modelName)
	for key, limit := range modelWindowLimits {
		if strings.Contains(lower, key) {
			return limit
		}
	}
	return DefaultWindowLimit
}

// Open creates a fresh active session for a project. The optimization
// profile is auto-selected from the limit unless configured explicitly.
func (m *Manager) Open(ctx context.Context, projectID int64, milestoneID *int64, limit int64) (*types.Session, error) {
	profile := ProfileForLimit(limit)
	if setting := config.GetOptimizationProfileSetting(); setting != "" && setting != "auto" {
		profile = ProfileByName(setting)
	}
	s := &types.Session{
		ID:                  uuid.NewString(),
		ProjectID:           projectID,
		MilestoneID:         milestoneID,
		Status:              types.SessionActive,
		StartedAt:           time.Now().UTC(),
		ContextWindowLimit:  limit,
		OptimizationProfile: profile.Name,
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, errorkit.WithContext(err, "session", s.ID)
	}
	return s, nil
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*types.Session, error) {
	return m.store.GetSession(ctx, id)
}

// Zone derives the utilization zone for a session against the
// configured thresholds.
func Zone(s *types.Session) types.Zone {
	return zoneFor(s.Utilization(), config.GetZoneThresholds())
}

func zoneFor(utilization float64, t config.ZoneThresholds) types.Zone {
	switch {
	case utilization >= t.Red:
		return types.ZoneRed
	case utilization >= t.Orange:
		return types.ZoneOrange
	case utilization >= t.Yellow:
		return types.ZoneYellow
	default:
		return types.ZoneGreen
	}
}

// AddIterationTokens atomically adds one iteration's token breakdown
// to the session ledger and returns the new zone. The ledger only
// grows; cumulative tokens are non-decreasing.
func (m *Manager) AddIterationTokens(ctx context.Context, sessionID string, tokens types.TokenBreakdown) (types.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	before := Zone(s)
	s.CumulativeTokens = s.CumulativeTokens.Add(tokens)
	err = m.store.UpdateSession(ctx, sessionID, map[string]any{
		"cumulative_input":          s.CumulativeTokens.Input,
		"cumulative_cache_read":     s.CumulativeTokens.CacheRead,
		"cumulative_cache_creation": s.CumulativeTokens.CacheCreation,
		"cumulative_output":         s.CumulativeTokens.Output,
	})
	if err != nil {
		return "", err
	}
	after := Zone(s)
	metrics.RecordTokens(ctx, tokens.Input, tokens.CacheRead, tokens.CacheCreation, tokens.Output)
	if before != after {
		metrics.RecordZoneTransition(ctx, string(before), string(after))
		m.log.Info("session zone transition",
			slog.String("session_id", sessionID),
			slog.String("from", string(before)),
			slog.String("to", string(after)),
			slog.Float64("utilization", s.Utilization()))
	}
	return after, nil
}

// ShouldRefresh reports whether the session's zone mandates a refresh
// before the next iteration (orange and red zones, when auto-refresh
// is enabled).
func (m *Manager) ShouldRefresh(s *types.Session) bool {
	if !config.GetAutoRefresh() {
		return false
	}
	z := Zone(s)
	return z == types.ZoneOrange || z == types.ZoneRed
}

// Emergency reports whether the session has crossed the emergency
// threshold and must refresh immediately, not merely before the next
// iteration.
func (m *Manager) Emergency(s *types.Session) bool {
	return s.Utilization() >= config.GetZoneThresholds().Emergency
}

// summaryTokenEstimate approximates the token cost of carrying a
// summary into a successor session, at the usual four-characters-per-
// token heuristic. Accounting is manual and tolerates ±10% drift;
// the zone thresholds carry a matching guard band.
func summaryTokenEstimate(summary string) int64 {
	return int64(len(summary) / 4)
}

// Refresh closes a session and opens a successor carrying forward a
// summary. The summary comes from the supervising LLM
// when available, else from a deterministic aggregator over the
// session's iteration digests; the degraded path is recorded on both
// session rows. The close and the successor's creation commit in one
// transaction with the summary write.
func (m *Manager) Refresh(ctx context.Context, old *types.Session) (*types.Session, error) {
	summary, degraded := m.summarize(ctx, old)

	successor := &types.Session{
		ID:                  uuid.NewString(),
		ProjectID:           old.ProjectID,
		MilestoneID:         old.MilestoneID,
		Status:              types.SessionActive,
		StartedAt:           time.Now().UTC(),
		ContextWindowLimit:  old.ContextWindowLimit,
		CumulativeTokens:    types.TokenBreakdown{Input: summaryTokenEstimate(summary)},
		Summary:             summary,
		PredecessorID:       old.ID,
		Degraded:            degraded,
		OptimizationProfile: old.OptimizationProfile,
	}

	now := time.Now().UTC()
	err := m.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.CreateSession(ctx, successor); err != nil {
			return err
		}
		return tx.UpdateSession(ctx, old.ID, map[string]any{
			"status":       string(types.SessionRefreshed),
			"ended_at":     now.Format(time.RFC3339Nano),
			"summary":      summary,
			"successor_id": successor.ID,
			"degraded":     boolToInt(degraded || old.Degraded),
		})
	})
	if err != nil {
		return nil, errorkit.WithContext(err, "session", old.ID)
	}

	digest := sha256.Sum256([]byte(summary))
	if m.bus != nil {
		m.bus.Publish(ctx, eventbus.Event{Type: eventbus.SessionRefreshed, Payload: eventbus.SessionRefresh{
			OldSessionID:  old.ID,
			NewSessionID:  successor.ID,
			SummaryDigest: hex.EncodeToString(digest[:8]),
		}})
	}
	m.log.Info("session refreshed",
		slog.String("old", old.ID),
		slog.String("new", successor.ID),
		slog.Bool("degraded", degraded))
	return successor, nil
}

// summarize produces the carryover summary for a closing session.
// Returns degraded=true when the deterministic fallback was used.
func (m *Manager) summarize(ctx context.Context, s *types.Session) (string, bool) {
	iterations := m.recentIterations(ctx, s)
	if m.llm.Available() {
		prompt := buildSummaryPrompt(s, iterations)
		llmCtx, cancel := context.WithTimeout(ctx, config.GetLLMTimeout())
		defer cancel()
		text, err := m.llm.Generate(llmCtx, prompt, llm.Options{MaxTokens: 1024})
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), false
		}
		m.log.Warn("supervising llm summary failed, using deterministic fallback",
			slog.String("session_id", s.ID))
	}
	return deterministicSummary(s, iterations), true
}

// recentIterations collects the iteration digests recorded against
// this session, most recent last.
func (m *Manager) recentIterations(ctx context.Context, s *types.Session) []*types.Iteration {
	// Iterations are keyed by task; the session row does not track its
	// tasks, so walk the project's running/recently-active items. The
	// refresh path is rare enough that this scan is acceptable.
	items, err := m.store.ListWorkItems(ctx, store.WorkItemFilter{ProjectID: &s.ProjectID})
	if err != nil {
		return nil
	}
	var out []*types.Iteration
	for _, it := range items {
		iters, err := m.store.ListIterations(ctx, it.ID)
		if err != nil {
			continue
		}
		for _, iter := range iters {
			if iter.SessionID == s.ID {
				out = append(out, iter)
			}
		}
	}
	return out
}

func buildSummaryPrompt(s *types.Session, iterations []*types.Iteration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the working state of this execution session for continuation in a fresh context.\n")
	fmt.Fprintf(&b, "Session %s consumed %d tokens over %d recorded iterations.\n", s.ID, s.CumulativeTokens.Total(), len(iterations))
	if s.Summary != "" {
		fmt.Fprintf(&b, "Carried-over summary from predecessor:\n%s\n", s.Summary)
	}
	for _, it := range iterations {
		fmt.Fprintf(&b, "- task %d iteration %d: decision=%s quality=%.2f confidence=%.2f digest=%s\n",
			it.TaskID, it.Index, it.Decision, it.Quality, it.Confidence, it.ResponseDigest)
	}
	b.WriteString("Reply with a concise summary of progress, open problems, and next steps.")
	return b.String()
}

// deterministicSummary is the fallback aggregator over iteration
// digests used when the supervising LLM is unavailable.
func deterministicSummary(s *types.Session, iterations []*types.Iteration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %d iterations, %d tokens", s.ID, len(iterations), s.CumulativeTokens.Total())
	if s.Summary != "" {
		fmt.Fprintf(&b, "; carried: %s", firstLine(s.Summary))
	}
	for _, it := range iterations {
		fmt.Fprintf(&b, "\ntask %d #%d %s q=%.2f c=%.2f %s",
			it.TaskID, it.Index, it.Decision, it.Quality, it.Confidence, it.ResponseDigest)
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Checkpoint appends a working-memory snapshot to the session's
// append-only checkpoint stream, with a monotonically increasing index.
func (m *Manager) Checkpoint(ctx context.Context, sessionID string, snapshot []byte) (*types.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.checkpointIndex[sessionID]
	if !ok {
		existing, err := m.store.ListCheckpoints(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		idx = len(existing)
	}
	c := &types.Checkpoint{SessionID: sessionID, Index: idx + 1, Snapshot: snapshot}
	if err := m.store.AppendCheckpoint(ctx, c); err != nil {
		return nil, err
	}
	m.checkpointIndex[sessionID] = c.Index
	return c, nil
}

// Close marks a session terminal with the given status (completed or
// abandoned) and stamps ended_at.
func (m *Manager) Close(ctx context.Context, sessionID string, status types.SessionStatus) error {
	if status != types.SessionCompleted && status != types.SessionAbandoned {
		return errorkit.New(errorkit.KindStateError, "close requires completed or abandoned")
	}
	return m.store.UpdateSession(ctx, sessionID, map[string]any{
		"status":   string(status),
		"ended_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
