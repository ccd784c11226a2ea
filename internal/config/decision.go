package config

// Decision threshold config keys for the decision engine.
const (
	KeyDecisionThresholdHighConfidence   = "decision.thresholds.high_confidence"
	KeyDecisionThresholdMediumConfidence = "decision.thresholds.medium_confidence"
	KeyDecisionThresholdQualityGate      = "decision.thresholds.quality_gate"
)

// RegisterDecisionDefaults installs the decision.thresholds.* defaults.
func RegisterDecisionDefaults() {
	v.SetDefault(KeyDecisionThresholdHighConfidence, 0.85)
	v.SetDefault(KeyDecisionThresholdMediumConfidence, 0.65)
	v.SetDefault(KeyDecisionThresholdQualityGate, 0.80)
}

// DecisionThresholds is the resolved, typed form of decision.thresholds.*.
type DecisionThresholds struct {
	HighConfidence   float64
	MediumConfidence float64
	QualityGate      float64
}

// GetDecisionThresholds reads the decision.thresholds.* keys.
func GetDecisionThresholds() DecisionThresholds {
	return DecisionThresholds{
		HighConfidence:   GetFloat64(KeyDecisionThresholdHighConfidence),
		MediumConfidence: GetFloat64(KeyDecisionThresholdMediumConfidence),
		QualityGate:      GetFloat64(KeyDecisionThresholdQualityGate),
	}
}
