package session

// Profile is an optimization profile auto-selected from the context
// window limit. It tunes summarization thresholds,
// working-memory retention, and checkpoint cadence.
type Profile struct {
	Name string
	// SummarizeAfterIterations is how many iterations accumulate before
	// the refresh summary folds them into running summaries.
	SummarizeAfterIterations int
	// RetainIterations is how many recent iteration digests are carried
	// verbatim into a successor session's prompt context.
	RetainIterations int
	// CheckpointEvery is the iteration cadence for automatic
	// checkpoints; 0 disables automatic checkpointing.
	CheckpointEvery int
}

// Profiles, most aggressive first: ultra-aggressive < 8k, aggressive
// 8-32k, balanced-aggressive 32-100k, balanced 100-250k, minimal
// >= 250k.
var (
	ProfileUltraAggressive    = Profile{Name: "ultra-aggressive", SummarizeAfterIterations: 2, RetainIterations: 1, CheckpointEvery: 1}
	ProfileAggressive         = Profile{Name: "aggressive", SummarizeAfterIterations: 4, RetainIterations: 2, CheckpointEvery: 2}
	ProfileBalancedAggressive = Profile{Name: "balanced-aggressive", SummarizeAfterIterations: 8, RetainIterations: 4, CheckpointEvery: 4}
	ProfileBalanced           = Profile{Name: "balanced", SummarizeAfterIterations: 16, RetainIterations: 8, CheckpointEvery: 8}
	ProfileMinimal            = Profile{Name: "minimal", SummarizeAfterIterations: 32, RetainIterations: 16, CheckpointEvery: 0}
)

// ProfileForLimit selects the optimization profile for a context
// window limit.
func ProfileForLimit(limit int64) Profile {
	switch {
	case limit < 8_000:
		return ProfileUltraAggressive
	case limit < 32_000:
		return ProfileAggressive
	case limit < 100_000:
		return ProfileBalancedAggressive
	case limit < 250_000:
		return ProfileBalanced
	default:
		return ProfileMinimal
	}
}

// ProfileByName resolves an explicitly configured profile name,
// falling back to ProfileBalanced for unknown names.
func ProfileByName(name string) Profile {
	for _, p := range []Profile{
		ProfileUltraAggressive, ProfileAggressive, ProfileBalancedAggressive,
		ProfileBalanced, ProfileMinimal,
	} {
		if p.Name == name {
			return p
		}
	}
	return ProfileBalanced
}
