// Package metrics registers the OTel instruments the orchestration
// core emits: iteration counters, token histograms, zone-transition
// counters, and scheduler queue depth. Instruments are created against
// the global meter provider at init time, so they forward to a real
// provider once the embedding binary configures one and are harmless
// no-ops otherwise.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Omar-Unpossible/claude-code-orchestrator-sub008"

var instruments struct {
	iterationsTotal   metric.Int64Counter
	tokensConsumed    metric.Int64Counter
	zoneTransitions   metric.Int64Counter
	queueDepth        metric.Int64UpDownCounter
	decisionsTotal    metric.Int64Counter
	breakpointsRaised metric.Int64Counter
	retriesScheduled  metric.Int64Counter
}

func init() {
	m := otel.Meter(meterName)

	instruments.iterationsTotal, _ = m.Int64Counter("orch.execution.iterations_total",
		metric.WithDescription("execution loop iterations recorded"),
		metric.WithUnit("{iteration}"),
	)
	instruments.tokensConsumed, _ = m.Int64Counter("orch.session.tokens_consumed_total",
		metric.WithDescription("tokens consumed across all sessions, by category"),
		metric.WithUnit("{token}"),
	)
	instruments.zoneTransitions, _ = m.Int64Counter("orch.session.zone_transitions_total",
		metric.WithDescription("context-window zone transitions"),
		metric.WithUnit("{transition}"),
	)
	instruments.queueDepth, _ = m.Int64UpDownCounter("orch.scheduler.queue_depth",
		metric.WithDescription("ready work items currently queued per project"),
		metric.WithUnit("{item}"),
	)
	instruments.decisionsTotal, _ = m.Int64Counter("orch.decision.decisions_total",
		metric.WithDescription("decision engine outcomes, by decision kind"),
		metric.WithUnit("{decision}"),
	)
	instruments.breakpointsRaised, _ = m.Int64Counter("orch.breakpoint.raised_total",
		metric.WithDescription("breakpoints raised, by reason"),
		metric.WithUnit("{breakpoint}"),
	)
	instruments.retriesScheduled, _ = m.Int64Counter("orch.scheduler.retries_scheduled_total",
		metric.WithDescription("retry attempts scheduled by the scheduler"),
		metric.WithUnit("{retry}"),
	)
}

// RecordIteration increments the iteration counter for a task type.
func RecordIteration(ctx context.Context, taskType string, decision string) {
	instruments.iterationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("decision", decision),
	))
	instruments.decisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
	))
}

// RecordTokens adds the four token categories of one ledger update.
func RecordTokens(ctx context.Context, input, cacheRead, cacheCreation, output int64) {
	instruments.tokensConsumed.Add(ctx, input, metric.WithAttributes(attribute.String("category", "input")))
	instruments.tokensConsumed.Add(ctx, cacheRead, metric.WithAttributes(attribute.String("category", "cache_read")))
	instruments.tokensConsumed.Add(ctx, cacheCreation, metric.WithAttributes(attribute.String("category", "cache_creation")))
	instruments.tokensConsumed.Add(ctx, output, metric.WithAttributes(attribute.String("category", "output")))
}

// RecordZoneTransition records a session moving from one utilization
// zone to another.
func RecordZoneTransition(ctx context.Context, from, to string) {
	instruments.zoneTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// AdjustQueueDepth changes the ready-queue depth gauge for a project by delta.
func AdjustQueueDepth(ctx context.Context, projectID int64, delta int64) {
	instruments.queueDepth.Add(ctx, delta, metric.WithAttributes(
		attribute.Int64("project_id", projectID),
	))
}

// RecordBreakpointRaised increments the breakpoint counter for a reason.
func RecordBreakpointRaised(ctx context.Context, reason string) {
	instruments.breakpointsRaised.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordRetryScheduled increments the scheduled-retry counter for a task type.
func RecordRetryScheduled(ctx context.Context, taskType string) {
	instruments.retriesScheduled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", taskType),
	))
}
