package config

import "testing"

func TestInitializeRegistersDefaults(t *testing.T) {
	if err := Initialize(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rp := GetRetryPolicy()
	if rp.BaseDelay.Seconds() != 60 {
		t.Errorf("expected base delay 60s, got %v", rp.BaseDelay)
	}
	if rp.Factor != 2.0 {
		t.Errorf("expected factor 2.0, got %v", rp.Factor)
	}
	if rp.Jitter != 0.2 {
		t.Errorf("expected jitter 0.2, got %v", rp.Jitter)
	}
	if rp.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", rp.MaxAttempts)
	}
}

func TestMaxTurnsDefaults(t *testing.T) {
	_ = Initialize("")
	mt := GetMaxTurnsConfig()
	if mt.Default != 50 {
		t.Errorf("expected default 50, got %d", mt.Default)
	}
	if mt.Min != 3 || mt.Max != 150 {
		t.Errorf("expected [3,150], got [%d,%d]", mt.Min, mt.Max)
	}
	if mt.RetryMultiplier != 3.0 {
		t.Errorf("expected retry_multiplier 3.0, got %v", mt.RetryMultiplier)
	}
	if !mt.AutoRetry {
		t.Errorf("expected auto_retry true")
	}
}

func TestDecisionThresholdDefaults(t *testing.T) {
	_ = Initialize("")
	dt := GetDecisionThresholds()
	if dt.HighConfidence != 0.85 || dt.MediumConfidence != 0.65 || dt.QualityGate != 0.80 {
		t.Errorf("unexpected thresholds: %+v", dt)
	}
}

func TestZoneThresholdDefaults(t *testing.T) {
	_ = Initialize("")
	zt := GetZoneThresholds()
	if zt.Yellow != 0.50 || zt.Orange != 0.70 || zt.Red != 0.85 || zt.Emergency != 0.95 {
		t.Errorf("unexpected zone thresholds: %+v", zt)
	}
	if GetContextWindowLimitSetting() != AutoLimit {
		t.Errorf("expected default limit %q, got %q", AutoLimit, GetContextWindowLimitSetting())
	}
}

func TestTimeoutDefaults(t *testing.T) {
	_ = Initialize("")
	if GetAgentTimeout().Seconds() != 7200 {
		t.Errorf("expected agent timeout 7200s, got %v", GetAgentTimeout())
	}
	if GetLLMTimeout().Seconds() != 120 {
		t.Errorf("expected llm timeout 120s, got %v", GetLLMTimeout())
	}
	if GetStoreTimeout().Seconds() != 30 {
		t.Errorf("expected store timeout 30s, got %v", GetStoreTimeout())
	}
}

func TestSetOverridesDefault(t *testing.T) {
	_ = Initialize("")
	Set(KeyDecisionThresholdQualityGate, 0.9)
	if GetDecisionThresholds().QualityGate != 0.9 {
		t.Errorf("expected override to take effect")
	}
}
