package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/aggregator"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

func TestEngine_Evaluate_NoAlertOnQuietEntity(t *testing.T) {
	agg := aggregator.New()
	model := NewModelClient("", 0, zap.NewNop())
	engine := NewEngine(agg, model, DefaultThresholds(), false)

	event := &models.PaymentEvent{
		EventID:           "evt-1",
		MerchantReference: "merchant-1",
		Timestamp:         time.Now(),
		Status:            models.StatusSuccess,
	}
	agg.Record(models.EntityMerchant, "merchant-1", event.Timestamp, 10, false)

	alert := engine.Evaluate(context.Background(), event)
	assert.Nil(t, alert)
}

func TestEngine_Evaluate_EmitsAlertOnHighFailureRate(t *testing.T) {
	agg := aggregator.New()
	model := NewModelClient("", 0, zap.NewNop())
	engine := NewEngine(agg, model, DefaultThresholds(), false)

	base := time.Now()
	for i := 0; i < 4; i++ {
		agg.Record(models.EntityMerchant, "merchant-2", base.Add(time.Duration(i)*time.Second), 10, true)
	}

	event := &models.PaymentEvent{
		EventID:           "evt-2",
		MerchantReference: "merchant-2",
		Timestamp:         base.Add(4 * time.Second),
		Status:            models.StatusFailed,
		Amount:            10,
	}

	alert := engine.Evaluate(context.Background(), event)
	require.NotNil(t, alert)
	assert.Equal(t, models.EntityMerchant, alert.EntityType)
	assert.Equal(t, "merchant-2", alert.EntityID)
	assert.Contains(t, alert.SignalTypes, models.SignalHighFailureRate)
	assert.Equal(t, []string{"evt-2"}, alert.RelatedEventIDs)
}

func TestEngine_Evaluate_NoKeysNoAlert(t *testing.T) {
	agg := aggregator.New()
	engine := NewEngine(agg, NewModelClient("", 0, zap.NewNop()), DefaultThresholds(), false)

	event := &models.PaymentEvent{EventID: "evt-3", Timestamp: time.Now()}
	assert.Nil(t, engine.Evaluate(context.Background(), event))
}

func TestEngine_Evaluate_MLDisabledNeverCallsModel(t *testing.T) {
	agg := aggregator.New()
	// A non-empty URL that would fail to connect if ever dialed; mlEnabled
	// false must mean Score is never invoked for the merchant dimension.
	model := NewModelClient("http://127.0.0.1:1/unreachable", 50, zap.NewNop())
	engine := NewEngine(agg, model, DefaultThresholds(), false)

	base := time.Now()
	for i := 0; i < 4; i++ {
		agg.Record(models.EntityMerchant, "merchant-3", base.Add(time.Duration(i)*time.Second), 10, true)
	}
	event := &models.PaymentEvent{
		EventID:           "evt-4",
		MerchantReference: "merchant-3",
		Timestamp:         base.Add(4 * time.Second),
	}

	alert := engine.Evaluate(context.Background(), event)
	require.NotNil(t, alert)
	assert.Contains(t, alert.Summary, "[rules]")
}
