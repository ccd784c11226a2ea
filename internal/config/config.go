// Package config centralizes runtime configuration for the
// orchestration core behind a viper-backed singleton: one
// key-constant-per-setting, one RegisterXDefaults per domain, and
// typed Get accessors so callers never touch viper directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// EnvPrefix is the prefix applied to environment variable overrides,
// e.g. ORCH_SCHEDULER_RETRY_MAX_ATTEMPTS overrides
// scheduler.retry.max_attempts.
const EnvPrefix = "ORCH"

// Initialize constructs the package-level viper instance, registers
// every domain's defaults, and optionally loads a config file. Safe to
// call more than once; each call starts from a fresh viper instance so
// tests can re-initialize between cases.
func Initialize(configPath string) error {
	v = viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	RegisterSchedulerDefaults()
	RegisterExecutionDefaults()
	RegisterDecisionDefaults()
	RegisterSessionDefaults()
	RegisterTimeoutDefaults()

	if configPath == "" {
		return nil
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", configPath, err)
	}
	return nil
}

// ensure lazily initializes the singleton with no config file so tests
// and library consumers that never call Initialize still get defaults.
func ensure() {
	if v == nil {
		_ = Initialize("")
	}
}

// Raw returns the underlying viper instance for advanced use
// (e.g. Sub, Unmarshal). Most callers should prefer the typed
// accessors in the domain-specific files in this package.
func Raw() *viper.Viper {
	ensure()
	return v
}

func GetString(key string) string {
	ensure()
	return v.GetString(key)
}

func GetInt(key string) int {
	ensure()
	return v.GetInt(key)
}

func GetFloat64(key string) float64 {
	ensure()
	return v.GetFloat64(key)
}

func GetBool(key string) bool {
	ensure()
	return v.GetBool(key)
}

func GetDuration(key string) time.Duration {
	ensure()
	return v.GetDuration(key)
}

func GetStringSlice(key string) []string {
	ensure()
	return v.GetStringSlice(key)
}

func GetStringMap(key string) map[string]interface{} {
	ensure()
	return v.GetStringMap(key)
}

func GetIntMap(key string) map[string]int {
	ensure()
	if typed, ok := v.Get(key).(map[string]int); ok {
		out := make(map[string]int, len(typed))
		for k, n := range typed {
			out[k] = n
		}
		return out
	}
	raw := v.GetStringMap(key)
	out := make(map[string]int, len(raw))
	for k, val := range raw {
		switch n := val.(type) {
		case int:
			out[k] = n
		case int64:
			out[k] = int(n)
		case float64:
			out[k] = int(n)
		}
	}
	return out
}

// Set overrides a key at runtime, mainly for tests.
func Set(key string, value interface{}) {
	ensure()
	v.Set(key, value)
}

// IsSet reports whether key has an explicit value (file, env, or Set)
// as opposed to only a registered default.
func IsSet(key string) bool {
	ensure()
	return v.IsSet(key)
}
