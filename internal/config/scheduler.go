package config

import "time"

// Scheduler retry/backoff config keys.
const (
	KeySchedulerRetryBaseDelaySeconds = "scheduler.retry.base_delay_seconds"
	KeySchedulerRetryFactor           = "scheduler.retry.factor"
	KeySchedulerRetryJitter           = "scheduler.retry.jitter"
	KeySchedulerRetryMaxAttempts      = "scheduler.retry.max_attempts"

	// KeySchedulerPriorityExtraBoosts is an extension point: an ordered
	// list of {condition, amount} rules evaluated in addition to the
	// three fixed priority-boost rules.
	// It is read as a raw slice of maps; the scheduler package decides
	// how to interpret each entry's "condition" string.
	KeySchedulerPriorityExtraBoosts = "scheduler.priority.extra_boosts"
)

// RegisterSchedulerDefaults installs the scheduler.* defaults.
func RegisterSchedulerDefaults() {
	v.SetDefault(KeySchedulerRetryBaseDelaySeconds, 60)
	v.SetDefault(KeySchedulerRetryFactor, 2.0)
	v.SetDefault(KeySchedulerRetryJitter, 0.2)
	v.SetDefault(KeySchedulerRetryMaxAttempts, 3)
	v.SetDefault(KeySchedulerPriorityExtraBoosts, []map[string]interface{}{})
}

// RetryPolicy is the resolved, typed form of scheduler.retry.*.
type RetryPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	Jitter      float64
	MaxAttempts int
}

// GetRetryPolicy reads the scheduler.retry.* keys into a RetryPolicy.
func GetRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   time.Duration(GetInt(KeySchedulerRetryBaseDelaySeconds)) * time.Second,
		Factor:      GetFloat64(KeySchedulerRetryFactor),
		Jitter:      GetFloat64(KeySchedulerRetryJitter),
		MaxAttempts: GetInt(KeySchedulerRetryMaxAttempts),
	}
}

// GetPriorityExtraBoosts returns the raw extra-boost rule list for the
// scheduler's priority-boosting pass to interpret. Config files decode
// the list as []interface{}; runtime Set can hand it over typed.
func GetPriorityExtraBoosts() []map[string]interface{} {
	ensure()
	switch raw := v.Get(KeySchedulerPriorityExtraBoosts).(type) {
	case []map[string]interface{}:
		return raw
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(raw))
		for _, entry := range raw {
			if m, ok := entry.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
