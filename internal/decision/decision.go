// Package decision implements the decision engine: a
// pure function from iteration signals to the next action. It holds no
// state and makes no external calls; the execution loop owns applying
// the result.
package decision

import (
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

// Inputs are the signals the engine evaluates for one iteration.
type Inputs struct {
	ValidationPassed bool
	Quality          float64
	Confidence       float64
	Iteration        int
	MaxTurns         int
	// RetryBudget is the number of retry_iteration decisions still
	// permitted within this execution.
	RetryBudget int
	Thresholds  config.DecisionThresholds
}

// Result is the engine's verdict plus the rule that produced it, for
// logging and for iteration rows.
type Result struct {
	Decision types.Decision
	// Exhausted is set when the iteration budget is spent; the caller
	// must run deliverable assessment instead of iterating further.
	Exhausted bool
	Rule      string
}

// Decide applies the ordered decision policy. Rules are evaluated
// strictly in order; the first match wins.
func Decide(in Inputs) Result {
	switch {
	case !in.ValidationPassed && in.RetryBudget > 0:
		return Result{Decision: types.DecisionRetry, Rule: "validation_failed_retry"}
	case !in.ValidationPassed:
		return Result{Decision: types.DecisionEscalate, Rule: "validation_failed_no_budget"}
	case in.Quality >= in.Thresholds.QualityGate && in.Confidence >= in.Thresholds.HighConfidence:
		return Result{Decision: types.DecisionComplete, Rule: "quality_and_confidence_met"}
	case in.Iteration >= in.MaxTurns:
		return Result{Decision: types.DecisionRefine, Exhausted: true, Rule: "turn_budget_exhausted"}
	case in.Confidence < in.Thresholds.MediumConfidence:
		return Result{Decision: types.DecisionEscalate, Rule: "low_confidence"}
	default:
		return Result{Decision: types.DecisionRefine, Rule: "refine"}
	}
}
