package config

import "time"

// Timeout config keys.
const (
	KeyTimeoutsAgentSeconds = "timeouts.agent_seconds"
	KeyTimeoutsLLMSeconds   = "timeouts.llm_seconds"
	KeyTimeoutsStoreSeconds = "timeouts.store_seconds"
)

// RegisterTimeoutDefaults installs the timeouts.* defaults: two hours
// for an agent turn, two minutes for a supervisor call, thirty seconds
// for a store operation.
func RegisterTimeoutDefaults() {
	v.SetDefault(KeyTimeoutsAgentSeconds, 7200)
	v.SetDefault(KeyTimeoutsLLMSeconds, 120)
	v.SetDefault(KeyTimeoutsStoreSeconds, 30)
}

func GetAgentTimeout() time.Duration {
	return time.Duration(GetInt(KeyTimeoutsAgentSeconds)) * time.Second
}

func GetLLMTimeout() time.Duration {
	return time.Duration(GetInt(KeyTimeoutsLLMSeconds)) * time.Second
}

func GetStoreTimeout() time.Duration {
	return time.Duration(GetInt(KeyTimeoutsStoreSeconds)) * time.Second
}
