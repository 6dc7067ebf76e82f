package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

func TestEvaluateDimension_HighFailureRate(t *testing.T) {
	f := models.WindowFeatures{TotalCount: 4, FailureRate: 0.75}
	result := evaluateDimension(models.EntityMerchant, f, DefaultThresholds())
	assert.Contains(t, result.signals, models.SignalHighFailureRate)
	assert.Greater(t, result.score, 0.0)
}

func TestEvaluateDimension_EmailVsIPFailureSignal(t *testing.T) {
	f := models.WindowFeatures{TotalCount: 4, FailureRate: 0.75}
	emailResult := evaluateDimension(models.EntityEmail, f, DefaultThresholds())
	ipResult := evaluateDimension(models.EntityIP, f, DefaultThresholds())

	assert.Contains(t, emailResult.signals, models.SignalHighEmailFailureRate)
	assert.Contains(t, ipResult.signals, models.SignalHighIPFailureRate)
}

func TestEvaluateDimension_Velocity(t *testing.T) {
	f := models.WindowFeatures{TotalCount: 12, CountLast1Min: 15}
	result := evaluateDimension(models.EntityCard, f, DefaultThresholds())
	assert.Contains(t, result.signals, models.SignalHighVelocity)
}

func TestEvaluateDimension_UnusualAmount(t *testing.T) {
	f := models.WindowFeatures{TotalCount: 5, AvgAmount: 10, CurrentAmount: 30}
	result := evaluateDimension(models.EntityCard, f, DefaultThresholds())
	assert.Contains(t, result.signals, models.SignalUnusualAmount)
}

func TestEvaluateDimension_NoSignalsOnQuietWindow(t *testing.T) {
	f := models.WindowFeatures{TotalCount: 1, FailureRate: 0, CountLast1Min: 1, AvgAmount: 10, CurrentAmount: 10}
	result := evaluateDimension(models.EntityIP, f, DefaultThresholds())
	assert.Empty(t, result.signals)
	assert.Equal(t, 0.0, result.score)
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, models.RiskCritical, LevelForScore(0.9))
	assert.Equal(t, models.RiskHigh, LevelForScore(0.65))
	assert.Equal(t, models.RiskMedium, LevelForScore(0.45))
	assert.Equal(t, models.RiskLow, LevelForScore(0.1))
}
