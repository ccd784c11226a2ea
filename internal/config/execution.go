package config

// Execution max-turns config keys.
const (
	KeyExecutionMaxTurnsByWorkItemType = "execution.max_turns.by_work_item_type"
	KeyExecutionMaxTurnsByTaskType     = "execution.max_turns.by_task_type"
	KeyExecutionMaxTurnsDefault        = "execution.max_turns.default"
	KeyExecutionMaxTurnsMin            = "execution.max_turns.min"
	KeyExecutionMaxTurnsMax            = "execution.max_turns.max"
	KeyExecutionMaxTurnsRetryMultiplier = "execution.max_turns.retry_multiplier"
	KeyExecutionMaxTurnsAutoRetry       = "execution.max_turns.auto_retry"
)

// RegisterExecutionDefaults installs the execution.* defaults.
func RegisterExecutionDefaults() {
	v.SetDefault(KeyExecutionMaxTurnsByWorkItemType, map[string]interface{}{})
	v.SetDefault(KeyExecutionMaxTurnsByTaskType, map[string]interface{}{})
	v.SetDefault(KeyExecutionMaxTurnsDefault, 50)
	v.SetDefault(KeyExecutionMaxTurnsMin, 3)
	v.SetDefault(KeyExecutionMaxTurnsMax, 150)
	v.SetDefault(KeyExecutionMaxTurnsRetryMultiplier, 3.0)
	v.SetDefault(KeyExecutionMaxTurnsAutoRetry, true)
}

// MaxTurnsConfig is the resolved, typed form of execution.max_turns.*.
type MaxTurnsConfig struct {
	ByWorkItemType  map[string]int
	ByTaskType      map[string]int
	Default         int
	Min             int
	Max             int
	RetryMultiplier float64
	AutoRetry       bool
}

// GetMaxTurnsConfig reads the execution.max_turns.* keys.
func GetMaxTurnsConfig() MaxTurnsConfig {
	return MaxTurnsConfig{
		ByWorkItemType:  GetIntMap(KeyExecutionMaxTurnsByWorkItemType),
		ByTaskType:      GetIntMap(KeyExecutionMaxTurnsByTaskType),
		Default:         GetInt(KeyExecutionMaxTurnsDefault),
		Min:             GetInt(KeyExecutionMaxTurnsMin),
		Max:             GetInt(KeyExecutionMaxTurnsMax),
		RetryMultiplier: GetFloat64(KeyExecutionMaxTurnsRetryMultiplier),
		AutoRetry:       GetBool(KeyExecutionMaxTurnsAutoRetry),
	}
}
