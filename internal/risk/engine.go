package risk

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexure-intelligence/payment-watchdog/internal/aggregator"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// Engine evaluates one event against its aggregator-derived features
// across the four dimensions and emits a RiskAlert when warranted (§4.10).
type Engine struct {
	aggregator *aggregator.Aggregator
	model      *ModelClient
	thresholds Thresholds
	mlEnabled  bool
	tracer     trace.Tracer
}

func NewEngine(agg *aggregator.Aggregator, model *ModelClient, thresholds Thresholds, mlEnabled bool) *Engine {
	return &Engine{aggregator: agg, model: model, thresholds: thresholds, mlEnabled: mlEnabled, tracer: otel.Tracer("risk-engine")}
}

type dimensionScore struct {
	key     aggregator.EntityKey
	signals []models.SignalType
	score   float64
	method  string
	feats   models.WindowFeatures
}

// Evaluate computes the per-dimension scores for event's entity keys, the
// engine's final score as their max, and — if the union of fired signals
// is non-empty and the final score clears the alert threshold — a
// RiskAlert attributed to the dimension that produced the maximum score.
func (e *Engine) Evaluate(ctx context.Context, event *models.PaymentEvent) *models.RiskAlert {
	_, span := e.tracer.Start(ctx, "risk.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", event.EventID))

	keys := aggregator.EntityKeys(event)
	if len(keys) == 0 {
		return nil
	}

	var dims []dimensionScore
	for _, k := range keys {
		feats := e.aggregator.Features(k.Type, k.ID, event.Timestamp)
		ruleResult := evaluateDimension(k.Type, feats, e.thresholds)

		score := ruleResult.score
		method := "rules"
		if e.mlEnabled && k.Type == models.EntityMerchant && e.model != nil {
			if modelScore, ok := e.model.Score(ctx, feats); ok {
				score = modelScore
				method = "ml"
			}
		}

		dims = append(dims, dimensionScore{
			key:     k,
			signals: ruleResult.signals,
			score:   score,
			method:  method,
			feats:   feats,
		})
	}

	finalScore := 0.0
	var top dimensionScore
	var allSignals []models.SignalType
	seen := make(map[models.SignalType]bool)
	for _, d := range dims {
		if d.score > finalScore {
			finalScore = d.score
			top = d
		}
		for _, s := range d.signals {
			if !seen[s] {
				seen[s] = true
				allSignals = append(allSignals, s)
			}
		}
	}

	span.SetAttributes(attribute.Float64("final_score", finalScore), attribute.Int("dimensions", len(dims)))

	if len(allSignals) == 0 || finalScore < e.thresholds.AlertScore {
		return nil
	}

	span.AddEvent("risk_alert_emitted", trace.WithAttributes(attribute.String("entity_type", string(top.key.Type))))

	return &models.RiskAlert{
		AlertID:             uuid.NewString(),
		Timestamp:           event.Timestamp,
		Level:               LevelForScore(finalScore),
		SignalTypes:         allSignals,
		RiskScore:           finalScore,
		EntityID:            top.key.ID,
		EntityType:          top.key.Type,
		RelatedEventIDs:      []string{event.EventID},
		Amount:              event.Amount,
		CurrencyCode:        event.CurrencyCode,
		Summary:             summarize(top, allSignals, dims),
		DetailedExplanation: detail(top),
	}
}

// summarize names method, primary dimension, signals, failure rate
// percentage, and 1-minute velocity, appending cross-type markers when the
// corresponding dimension's signals fired (§4.10 emission rule).
func summarize(top dimensionScore, allSignals []models.SignalType, dims []dimensionScore) string {
	names := make([]string, len(allSignals))
	for i, s := range allSignals {
		names[i] = string(s)
	}
	sort.Strings(names)

	summary := fmt.Sprintf(
		"[%s] %s risk: signals=%s failureRate=%.1f%% velocity1m=%d",
		top.method,
		top.key.Type,
		strings.Join(names, ","),
		top.feats.FailureRate*100,
		top.feats.CountLast1Min,
	)

	for _, d := range dims {
		if d.key.Type == top.key.Type {
			continue
		}
		for _, s := range d.signals {
			switch {
			case s == models.SignalHighEmailFailureRate || s == models.SignalHighEmailVelocity:
				summary += " [email cross-type]"
			case s == models.SignalHighIPFailureRate || s == models.SignalHighIPVelocity:
				summary += " [IP cross-type]"
			}
		}
	}
	return summary
}

func detail(top dimensionScore) string {
	return fmt.Sprintf(
		"entity=%s type=%s totalCount=%d failureCount=%d avgAmount=%.2f amountTrend=%d",
		top.key.ID, top.key.Type, top.feats.TotalCount, top.feats.FailureCount, top.feats.AvgAmount, top.feats.AmountTrend,
	)
}
