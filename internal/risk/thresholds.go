package risk

// Thresholds are the configurable cutoffs from §6 risk.thresholds.* and
// the rule predicate table in §4.10.
type Thresholds struct {
	HighFailureRate float64 // T_fail, default 0.5
	Velocity1Min    int     // T_vel, default 10
	AlertScore      float64 // T_alert, default 0.4 (midpoint of the 0.3-0.5 range)
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		HighFailureRate: 0.5,
		Velocity1Min:    10,
		AlertScore:      0.4,
	}
}

// LevelThresholds derive RiskLevel from a final score (§4.10 emission rule
// defaults).
const (
	levelCritical = 0.8
	levelHigh     = 0.6
	levelMedium   = 0.4
)
