package config

// Session/context-window config keys.
const (
	KeySessionContextWindowLimit        = "session.context_window.limit"
	KeySessionContextWindowZoneYellow   = "session.context_window.zones.yellow"
	KeySessionContextWindowZoneOrange   = "session.context_window.zones.orange"
	KeySessionContextWindowZoneRed      = "session.context_window.zones.red"
	KeySessionContextWindowZoneEmergency = "session.context_window.zones.emergency"
	KeySessionContextWindowAutoRefresh  = "session.context_window.auto_refresh"
	KeySessionOptimizationProfile       = "session.optimization_profile"
)

// AutoLimit is the sentinel value for session.context_window.limit
// meaning "derive the limit from the model/profile in use".
const AutoLimit = "auto"

// RegisterSessionDefaults installs the session.* defaults and the
// utilization zone boundaries.
func RegisterSessionDefaults() {
	v.SetDefault(KeySessionContextWindowLimit, AutoLimit)
	v.SetDefault(KeySessionContextWindowZoneYellow, 0.50)
	v.SetDefault(KeySessionContextWindowZoneOrange, 0.70)
	v.SetDefault(KeySessionContextWindowZoneRed, 0.85)
	v.SetDefault(KeySessionContextWindowZoneEmergency, 0.95)
	v.SetDefault(KeySessionContextWindowAutoRefresh, true)
	v.SetDefault(KeySessionOptimizationProfile, "auto")
}

// ZoneThresholds is the resolved, typed form of session.context_window.zones.*.
type ZoneThresholds struct {
	Yellow    float64
	Orange    float64
	Red       float64
	Emergency float64
}

// GetZoneThresholds reads the session.context_window.zones.* keys.
func GetZoneThresholds() ZoneThresholds {
	return ZoneThresholds{
		Yellow:    GetFloat64(KeySessionContextWindowZoneYellow),
		Orange:    GetFloat64(KeySessionContextWindowZoneOrange),
		Red:       GetFloat64(KeySessionContextWindowZoneRed),
		Emergency: GetFloat64(KeySessionContextWindowZoneEmergency),
	}
}

// GetContextWindowLimitSetting returns the raw configured limit, which
// is either a parseable integer string or AutoLimit.
func GetContextWindowLimitSetting() string {
	ensure()
	return v.GetString(KeySessionContextWindowLimit)
}

func GetAutoRefresh() bool {
	return GetBool(KeySessionContextWindowAutoRefresh)
}

func GetOptimizationProfileSetting() string {
	return GetString(KeySessionOptimizationProfile)
}
