// Package execution drives a single task from "picked up" to a
// terminal outcome: compose context, dispatch to the
// agent, validate, score, decide, act — iterating under an adaptive
// turn budget, with deliverable assessment classifying the outcome
// when the budget is spent.
package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/agent"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/breakpoint"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/decision"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/eventbus"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/llm"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/metrics"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/scheduler"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/session"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// iterationRetryBudget bounds retry_iteration decisions (and dispatch
// errors absorbed in place) within one execution.
const iterationRetryBudget = 3

// Executor owns one task execution at a time. Iterations within a
// single execution are strictly sequential; run multiple
// Executors for concurrent tasks.
type Executor struct {
	store      store.Store
	sched      *scheduler.Scheduler
	sessions   *session.Manager
	bps        *breakpoint.Manager
	agent      agent.Agent
	supervisor llm.LLM
	bus        *eventbus.Bus
	log        *slog.Logger
}

// NewExecutor wires the executor's collaborators. supervisor may be
// llm.Unavailable; bus may be nil.
func NewExecutor(s store.Store, sched *scheduler.Scheduler, sessions *session.Manager, bps *breakpoint.Manager, ag agent.Agent, supervisor llm.LLM, bus *eventbus.Bus, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if supervisor == nil {
		supervisor = llm.Unavailable{}
	}
	return &Executor{
		store: s, sched: sched, sessions: sessions, bps: bps,
		agent: ag, supervisor: supervisor, bus: bus, log: log,
	}
}

// Result is the terminal report for one task execution.
type Result struct {
	Outcome    types.Outcome
	Iterations int
	MaxTurns   int
	SessionID  string
	Assessment *Assessment
	Breakpoint *breakpoint.Handle
}

// Execute runs a task the scheduler has already marked running. It
// returns the terminal outcome; scheduler state transitions (complete,
// fail, block, cancel) happen inside.
func (e *Executor) Execute(ctx context.Context, task *types.WorkItem) (*Result, error) {
	if task.Status != types.StatusRunning {
		return nil, errorkit.New(errorkit.KindStateError, "execute requires a running task")
	}
	// One execution per task at a time: an iteration row left open
	// means another execution is still in flight.
	if last, err := e.store.LastIteration(ctx, task.ID); err == nil && last != nil && last.EndedAt == nil {
		return nil, errorkit.New(errorkit.KindStateError, "task has an open iteration from another execution")
	}
	log := e.log.With(slog.Int64("task_id", task.ID))

	// Cancellation observed before the session opens.
	if err := ctx.Err(); err != nil {
		_ = e.sched.Cancel(ctx2(), task.ID, "execution cancelled")
		return nil, errorkit.WrapAs("execution.Execute", errorkit.KindCancelled, err)
	}

	project, err := e.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	limit := session.ResolveLimit(e.agent, config.GetString("agent.model"))
	sess, err := e.sessions.Open(ctx, task.ProjectID, nil, limit)
	if err != nil {
		return nil, err
	}

	maxTurns := MaxTurns(task)
	cfg := config.GetMaxTurnsConfig()
	if task.Attempts > 0 && cfg.AutoRetry {
		// Retry after exhaustion runs with a multiplied budget.
		maxTurns = RetryMaxTurns(maxTurns)
	}
	log.Info("execution started",
		slog.String("session_id", sess.ID),
		slog.Int("max_turns", maxTurns),
		slog.Int64("window_limit", limit))

	profile := session.ProfileByName(sess.OptimizationProfile)
	retryBudget := iterationRetryBudget
	feedback := ""
	var files []string
	thresholds := config.GetDecisionThresholds()

	for i := 1; i <= maxTurns; i++ {
		// Cooperative cancellation between iterations.
		if err := ctx.Err(); err != nil {
			_ = e.sched.Cancel(ctx2(), task.ID, "execution cancelled")
			_ = e.sessions.Close(ctx2(), sess.ID, types.SessionAbandoned)
			return nil, errorkit.WrapAs("execution.Execute", errorkit.KindCancelled, err)
		}

		// Window management before each iteration: refresh out of band
		// when the zone mandates it, continuing in the successor.
		if e.sessions.ShouldRefresh(sess) || e.sessions.Emergency(sess) {
			successor, err := e.sessions.Refresh(ctx, sess)
			if err != nil {
				return nil, err
			}
			sess = successor
		}

		prompt := buildPrompt(task, project, sess, feedback, i)
		iter := &types.Iteration{
			TaskID:       task.ID,
			SessionID:    sess.ID,
			Index:        i,
			PromptDigest: digest(prompt),
			StartedAt:    time.Now().UTC(),
		}
		if err := e.store.CreateIteration(ctx, iter); err != nil {
			return nil, err
		}

		resp, err := e.dispatch(ctx, prompt, project)
		if err != nil {
			kind := errorkit.KindOf(err)
			if kind.Retryable() && retryBudget > 0 {
				retryBudget--
				feedback = "previous dispatch failed: " + err.Error()
				e.finishIteration(ctx, iter, types.ValidationFailed, 0, 0, types.DecisionRetry, true)
				continue
			}
			if errorkit.IsCancelled(err) {
				e.finishIteration(ctx2(), iter, types.ValidationFailed, 0, 0, "", true)
				_ = e.sched.Cancel(ctx2(), task.ID, "execution cancelled")
				_ = e.sessions.Close(ctx2(), sess.ID, types.SessionAbandoned)
				return nil, err
			}
			e.finishIteration(ctx, iter, types.ValidationFailed, 0, 0, "", true)
			if ferr := e.sched.Fail(ctx, task.ID, kind, err.Error()); ferr != nil {
				return nil, ferr
			}
			_ = e.sessions.Close(ctx, sess.ID, types.SessionCompleted)
			return &Result{Outcome: types.OutcomeFailed, Iterations: i, MaxTurns: maxTurns, SessionID: sess.ID}, nil
		}

		zone, err := e.sessions.AddIterationTokens(ctx, sess.ID, resp.Tokens)
		if err != nil {
			return nil, err
		}
		sess.CumulativeTokens = sess.CumulativeTokens.Add(resp.Tokens)
		files = append(files, resp.Files...)

		validationOK, vreason := validateResponse(resp)
		quality := qualityScore(task, resp)
		conf := confidenceScore(ctx, e.supervisor, task, resp, quality, validationOK)

		d := decision.Decide(decision.Inputs{
			ValidationPassed: validationOK,
			Quality:          quality,
			Confidence:       conf.Score,
			Iteration:        i,
			MaxTurns:         maxTurns,
			RetryBudget:      retryBudget,
			Thresholds:       thresholds,
		})

		validation := types.ValidationPassed
		if !validationOK {
			validation = types.ValidationFailed
		}
		iter.ResponseDigest = digest(resp.Text)
		iter.Tokens = resp.Tokens
		e.finishIteration(ctx, iter, validation, quality, conf.Score, d.Decision, conf.Degraded)
		metrics.RecordIteration(ctx, string(task.TaskType), string(d.Decision))
		if e.bus != nil {
			e.bus.Publish(ctx, eventbus.Event{Type: eventbus.IterationRecorded, Payload: iter})
		}
		log.Debug("iteration recorded",
			slog.Int("iteration", i),
			slog.String("zone", string(zone)),
			slog.Float64("quality", quality),
			slog.Float64("confidence", conf.Score),
			slog.String("decision", string(d.Decision)),
			slog.String("rule", d.Rule))

		if profile.CheckpointEvery > 0 && i%profile.CheckpointEvery == 0 {
			snapshot := []byte(fmt.Sprintf("task=%d iteration=%d quality=%.2f confidence=%.2f", task.ID, i, quality, conf.Score))
			if _, err := e.sessions.Checkpoint(ctx, sess.ID, snapshot); err != nil {
				log.Warn("checkpoint failed", slog.String("error", err.Error()))
			}
		}

		switch d.Decision {
		case types.DecisionComplete:
			summary := fmt.Sprintf("completed in %d iterations; %d deliverable files", i, len(dedupe(files)))
			if err := e.sched.Complete(ctx, task.ID, summary); err != nil {
				return nil, err
			}
			_ = e.sessions.Close(ctx, sess.ID, types.SessionCompleted)
			return &Result{Outcome: types.OutcomeSuccess, Iterations: i, MaxTurns: maxTurns, SessionID: sess.ID}, nil

		case types.DecisionEscalate:
			reason := d.Rule
			if vreason != "" {
				reason = vreason
			}
			h, err := e.bps.Raise(ctx, task.ID, reason)
			if err != nil {
				return nil, err
			}
			_ = e.sessions.Close(ctx, sess.ID, types.SessionCompleted)
			return &Result{Outcome: types.OutcomeBlocked, Iterations: i, MaxTurns: maxTurns, SessionID: sess.ID, Breakpoint: &h}, nil

		case types.DecisionRetry:
			retryBudget--
			feedback = "previous response failed validation: " + vreason

		case types.DecisionRefine:
			// On Exhausted the loop ends here and deliverable
			// assessment below takes over.
			if !d.Exhausted {
				feedback = fmt.Sprintf("previous iteration scored quality=%.2f confidence=%.2f; refine and continue", quality, conf.Score)
			}
		}
	}

	// Turn budget exhausted without a completion decision: classify by
	// what was actually delivered rather than reporting a raw failure.
	assess := AssessDeliverables(project.WorkingDir, files)
	log.Info("turn budget exhausted, assessing deliverables",
		slog.Int("files", len(assess.Files)),
		slog.Float64("quality", assess.Quality),
		slog.String("outcome", string(assess.Outcome)))

	result := &Result{
		Outcome:    assess.Outcome,
		Iterations: maxTurns,
		MaxTurns:   maxTurns,
		SessionID:  sess.ID,
		Assessment: &assess,
	}
	switch assess.Outcome {
	case types.OutcomeSuccessWithLimits, types.OutcomePartial:
		summary := fmt.Sprintf("%s: turn budget (%d) exhausted, deliverable quality %.2f over %d files",
			assess.Outcome, maxTurns, assess.Quality, len(assess.Files))
		if err := e.sched.Complete(ctx, task.ID, summary); err != nil {
			return nil, err
		}
	default:
		if err := e.sched.Fail(ctx, task.ID, errorkit.KindBudgetExhausted,
			fmt.Sprintf("turn budget (%d) exhausted with no acceptable deliverables", maxTurns)); err != nil {
			return nil, err
		}
	}
	_ = e.sessions.Close(ctx, sess.ID, types.SessionCompleted)
	return result, nil
}

// dispatch sends one prompt to the agent under the configured timeout,
// with a fresh idempotency token per iteration.
func (e *Executor) dispatch(ctx context.Context, prompt string, project *types.Project) (*agent.Response, error) {
	agentCtx, cancel := context.WithTimeout(ctx, config.GetAgentTimeout())
	defer cancel()
	resp, err := e.agent.Send(agentCtx, agent.Request{
		Prompt: prompt,
		Context: map[string]string{
			"project":     project.Name,
			"working_dir": project.WorkingDir,
		},
		IdempotencyToken: uuid.NewString(),
	})
	if err != nil {
		if agentCtx.Err() == context.DeadlineExceeded {
			return nil, errorkit.WrapAs("execution.dispatch", errorkit.KindTimeout, err)
		}
		return nil, err
	}
	return resp, nil
}

func (e *Executor) finishIteration(ctx context.Context, iter *types.Iteration, validation types.ValidationResult, quality, confidence float64, d types.Decision, degraded bool) {
	now := time.Now().UTC()
	iter.Validation = validation
	iter.Quality = quality
	iter.Confidence = confidence
	iter.Decision = d
	iter.EndedAt = &now
	iter.Degraded = degraded
	err := e.store.UpdateIteration(ctx, iter.ID, map[string]any{
		"response_digest":    iter.ResponseDigest,
		"tok_input":          iter.Tokens.Input,
		"tok_cache_read":     iter.Tokens.CacheRead,
		"tok_cache_creation": iter.Tokens.CacheCreation,
		"tok_output":         iter.Tokens.Output,
		"validation":         string(validation),
		"quality":            quality,
		"confidence":         confidence,
		"decision":           string(d),
		"ended_at":           now.Format(time.RFC3339Nano),
		"degraded":           degraded,
	})
	if err != nil {
		e.log.Warn("iteration update failed",
			slog.Int64("iteration_id", iter.ID),
			slog.String("error", err.Error()))
	}
}

// buildPrompt composes the prompt bundle for one iteration: task
// description, project context, the running session summary, and
// feedback from the prior iteration.
func buildPrompt(task *types.WorkItem, project *types.Project, sess *types.Session, feedback string, iteration int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\nWorking directory: %s\n\n", project.Name, project.WorkingDir)
	fmt.Fprintf(&b, "Task (%s/%s, iteration %d): %s\n", task.Type, task.TaskType, iteration, task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if sess.Summary != "" {
		fmt.Fprintf(&b, "\nContext carried over from the previous session:\n%s\n", sess.Summary)
	}
	if feedback != "" {
		fmt.Fprintf(&b, "\nFeedback on your previous attempt:\n%s\n", feedback)
	}
	return b.String()
}

func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}

// ctx2 gives cleanup paths a context that survives the caller's
// cancellation; the writes they make (cancelled status, abandoned
// session) must land even though ctx is already dead.
func ctx2() context.Context { return context.Background() }
