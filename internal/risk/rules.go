// Package risk implements the scoring engine from §4.10: a rule-based
// scorer per dimension with an optional model-service override for the
// MERCHANT dimension, signal emission, and alert construction. The rule
// shape (named predicate + contribution, evaluated independently and
// combined by priority/max) is grounded on the teacher's BasicRule /
// BasicRuleEngine (worker/internal/rules/basic_rule_engine.go), adapted
// from "first enabled match wins" action dispatch to "union of fired
// signals, max of contributions" scoring.
package risk

import "github.com/lexure-intelligence/payment-watchdog/internal/models"

// dimensionResult is one dimension's rule-derived signal set and score,
// before any model-service override.
type dimensionResult struct {
	signals []models.SignalType
	score   float64
}

// evaluateDimension applies the §4.10 predicate table to one dimension's
// features, returning the fired signal set and the max contribution among
// fired rules.
func evaluateDimension(dim models.EntityType, f models.WindowFeatures, t Thresholds) dimensionResult {
	var result dimensionResult

	fire := func(signal models.SignalType, contribution float64) {
		result.signals = append(result.signals, signal)
		if contribution > result.score {
			result.score = contribution
		}
	}

	if f.TotalCount > 0 && f.FailureRate >= t.HighFailureRate {
		switch dim {
		case models.EntityMerchant, models.EntityCard:
			fire(models.SignalHighFailureRate, 0.4+0.4*f.FailureRate)
		case models.EntityEmail:
			fire(models.SignalHighEmailFailureRate, 0.4+0.4*f.FailureRate)
		case models.EntityIP:
			fire(models.SignalHighIPFailureRate, 0.4+0.4*f.FailureRate)
		}
	}

	if f.FailureCount >= 3 && f.TotalCount <= 10 {
		fire(models.SignalRepeatedFailures, 0.5)
	}

	velocityByCount := f.CountLast1Min >= t.Velocity1Min
	velocityByGap := f.TotalCount >= 3 && f.SecondsSinceLastTransaction > 0 &&
		f.SecondsSinceLastTransaction < 5 && f.AvgTimeGapSeconds < 3
	if velocityByCount || velocityByGap {
		var contribution float64
		if velocityByCount {
			c := 0.3 + min(0.4, float64(f.CountLast1Min)/50)
			if c > contribution {
				contribution = c
			}
		}
		if velocityByGap {
			c := 0.35 + min(0.15, (5-f.AvgTimeGapSeconds)/10)
			if c > contribution {
				contribution = c
			}
		}
		switch dim {
		case models.EntityMerchant, models.EntityCard:
			fire(models.SignalHighVelocity, contribution)
		case models.EntityEmail:
			fire(models.SignalHighEmailVelocity, contribution)
		case models.EntityIP:
			fire(models.SignalHighIPVelocity, contribution)
		}
	}

	if f.TotalCount >= 3 && f.AvgAmount > 0 && f.CurrentAmount/f.AvgAmount >= 2.0 {
		fire(models.SignalUnusualAmount, 0.35)
	}

	if f.TotalCount >= 3 && f.IncreasingAmountCount >= 2 && f.AmountTrend > 0 {
		fire(models.SignalComplianceAnomaly, 0.5+min(0.2, 0.05*float64(f.IncreasingAmountCount)))
	}

	return result
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// LevelForScore derives the RiskLevel from a final score (§4.10 defaults).
func LevelForScore(score float64) models.RiskLevel {
	switch {
	case score >= levelCritical:
		return models.RiskCritical
	case score >= levelHigh:
		return models.RiskHigh
	case score >= levelMedium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
