// Package riskpipeline is the worker-side consumer of the payment event
// log: record into the aggregator, evaluate the risk engine, persist the
// event, and — on a fired alert — append/dispatch it (§4.8 step "a
// consumer delivers each message to..."). Grounded on the teacher's
// worker/internal/services/event_processor_service.go consumer loop,
// generalized from Stripe-webhook rule evaluation to the four-dimension
// aggregator/engine pipeline.
package riskpipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/aggregator"
	"github.com/lexure-intelligence/payment-watchdog/internal/alerts"
	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/eventbus"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
	"github.com/lexure-intelligence/payment-watchdog/internal/risk"
)

const paymentEventTopic = "payment.events"

// Processor wires the consumer-side fan-out described in §4.8.
type Processor struct {
	bus        eventbus.Bus
	aggregator *aggregator.Aggregator
	engine     *risk.Engine
	eventRepo  *repository.EventRepository
	alertStore *alerts.Store
	dispatcher *alerts.Dispatcher
	logger     *zap.Logger
}

func NewProcessor(
	bus eventbus.Bus,
	agg *aggregator.Aggregator,
	engine *risk.Engine,
	eventRepo *repository.EventRepository,
	alertStore *alerts.Store,
	dispatcher *alerts.Dispatcher,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		bus:        bus,
		aggregator: agg,
		engine:     engine,
		eventRepo:  eventRepo,
		alertStore: alertStore,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start subscribes to the payment event topic and blocks until ctx is
// cancelled or the subscription setup fails.
func (p *Processor) Start(ctx context.Context) error {
	sub, err := p.bus.Subscribe(ctx, paymentEventTopic, p.handle)
	if err != nil {
		return fmt.Errorf("riskpipeline: subscribe: %w", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

// handle implements the per-message fan-out. Consumer-side idempotency by
// eventId (I5) is enforced by inserting into the durable event table first:
// a duplicate insert (apperr.KindIntegrity) means this eventId was already
// fully processed by a prior delivery, so the aggregator/scoring/alerting
// steps are skipped on redelivery.
func (p *Processor) handle(ctx context.Context, payload []byte) error {
	var event models.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		p.logger.Warn("riskpipeline: malformed event payload, dropping", zap.Error(err))
		return nil
	}

	if err := p.eventRepo.Insert(ctx, event.ToPersisted()); err != nil {
		if apperr.KindOf(err) == apperr.KindIntegrity {
			p.logger.Debug("riskpipeline: duplicate event, already processed", zap.String("eventId", event.EventID))
			return nil
		}
		return err
	}

	for _, k := range aggregator.EntityKeys(&event) {
		p.aggregator.Record(k.Type, k.ID, event.Timestamp, event.Amount, event.Status == models.StatusFailed)
	}

	alert := p.engine.Evaluate(ctx, &event)
	if alert == nil {
		return nil
	}

	if err := p.alertStore.Append(ctx, alert); err != nil {
		p.logger.Warn("riskpipeline: failed to persist alert", zap.String("alertId", alert.AlertID), zap.Error(err))
	}
	p.dispatcher.Dispatch(ctx, alert)

	p.logger.Info("risk alert emitted",
		zap.String("alertId", alert.AlertID), zap.String("level", string(alert.Level)),
		zap.String("entityType", string(alert.EntityType)), zap.String("entityId", alert.EntityID),
		zap.Float64("score", alert.RiskScore))
	return nil
}
