// Package orchestrator implements the payment orchestrator from §4.6: it
// ties idempotency, routing, the breaker/retry-wrapped adapter call,
// failover, persistence, and event publication into a single
// execute(PaymentRequest) → PaymentResult contract. Grounded on the
// teacher's composition style (services wired by constructor injection,
// worker/internal/services/event_processor_service.go) generalized from a
// webhook-driven consumer into a synchronous request-path orchestrator.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/adapters"
	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/breaker"
	"github.com/lexure-intelligence/payment-watchdog/internal/eventbus"
	"github.com/lexure-intelligence/payment-watchdog/internal/idempotency"
	"github.com/lexure-intelligence/payment-watchdog/internal/metrics"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
	"github.com/lexure-intelligence/payment-watchdog/internal/routing"
)

const paymentEventTopic = "payment.events"

type Orchestrator struct {
	registry    *adapters.Registry
	breakers    *breaker.Registry
	metrics     *metrics.Registry
	strategy    routing.Strategy
	idempo      *idempotency.Store[models.PaymentResult, *models.PaymentResult]
	txRepo      *repository.TransactionRepository
	eventRepo   *repository.EventRepository
	bus         eventbus.Bus
	logger      *zap.Logger
	maxAttempts int
	failoverOn  bool
	tracer      trace.Tracer
}

func New(
	registry *adapters.Registry,
	breakers *breaker.Registry,
	metricsReg *metrics.Registry,
	strategy routing.Strategy,
	idempo *idempotency.Store[models.PaymentResult, *models.PaymentResult],
	txRepo *repository.TransactionRepository,
	eventRepo *repository.EventRepository,
	bus eventbus.Bus,
	logger *zap.Logger,
	maxAttempts int,
	failoverOn bool,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		breakers:    breakers,
		metrics:     metricsReg,
		strategy:    strategy,
		idempo:      idempo,
		txRepo:      txRepo,
		eventRepo:   eventRepo,
		bus:         bus,
		logger:      logger,
		maxAttempts: maxAttempts,
		failoverOn:  failoverOn,
		tracer:      otel.Tracer("orchestrator"),
	}
}

// Execute implements §4.6's contract.
func (o *Orchestrator) Execute(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	// 1. Idempotency check.
	if prior, ok := o.idempo.GetCached(ctx, req.IdempotencyKey); ok {
		return prior, nil
	}

	o.publishAsync(ctx, req, nil, models.EventPaymentRequested)

	attempted := make(map[string]bool)
	maxAttempts := o.maxAttempts
	if !o.failoverOn {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		adapter, ok := o.selectAdapter(req, attempted)
		if !ok {
			break
		}
		attempted[adapter.AdapterName()] = true

		// c. Pre-call durable check: another concurrent request may have
		// already completed this key.
		if tx, err := o.txRepo.FindByKey(ctx, req.IdempotencyKey); err == nil && tx != nil {
			return TransactionToResult(tx), nil
		}

		result, err := o.callAdapter(ctx, adapter, req)
		if err == nil {
			o.finalize(ctx, req, adapter, result)
			return result, nil
		}

		lastErr = err
		o.logger.Warn("orchestrator: adapter attempt failed, considering failover",
			zap.String("adapter", adapter.AdapterName()), zap.String("idempotencyKey", req.IdempotencyKey), zap.Error(err))

		if apperr.KindOf(err) == apperr.KindPermanent {
			result := permanentFailureResult(req, adapter, err)
			o.finalize(ctx, req, adapter, result)
			return result, nil
		}
	}

	noPsp := apperr.NewNoPspAvailable(len(attempted))
	o.logger.Error("orchestrator: exhausted failover", zap.String("idempotencyKey", req.IdempotencyKey),
		zap.Int("attempted", len(attempted)), zap.Error(lastErr))
	return nil, noPsp
}

// selectAdapter honors the providerPayload.testAdapterName override hook,
// otherwise asks the routing strategy to choose among healthy, unattempted
// adapters of the request's provider type whose breaker is not OPEN.
func (o *Orchestrator) selectAdapter(req *models.PaymentRequest, attempted map[string]bool) (adapters.Adapter, bool) {
	if name, ok := req.TestAdapterOverride(); ok {
		if a, found := o.registry.ByName(name); found && !attempted[name] && a.ProviderType() == req.ProviderType && a.IsHealthy() {
			return a, true
		}
	}

	candidates := make([]routing.Candidate, 0)
	byName := make(map[string]adapters.Adapter)
	for _, a := range o.registry.HealthyOfType(req.ProviderType) {
		name := a.AdapterName()
		if attempted[name] {
			continue
		}
		if o.breakers.Get(name).State() == breaker.StateOpen {
			continue
		}
		candidates = append(candidates, routing.Candidate{AdapterName: name, Metrics: o.metrics.Snapshot(name)})
		byName[name] = a
	}

	selected, ok := o.strategy.Select(req, candidates)
	if !ok {
		return nil, false
	}
	return byName[selected], true
}

// callAdapter runs the breaker(retry(adapter.execute)) wrapper, accounting
// metrics exactly once per invocation (I4).
func (o *Orchestrator) callAdapter(ctx context.Context, adapter adapters.Adapter, req *models.PaymentRequest) (*models.PaymentResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.call_adapter")
	defer span.End()
	span.SetAttributes(
		attribute.String("adapter", adapter.AdapterName()),
		attribute.String("provider_type", string(adapter.ProviderType())),
		attribute.String("idempotency_key", req.IdempotencyKey),
	)

	b := o.breakers.Get(adapter.AdapterName())
	end := o.metrics.BeginCall(adapter.AdapterName())

	start := time.Now()
	var result *models.PaymentResult
	err := b.Call(ctx, func(ctx context.Context) error {
		r, callErr := adapter.Execute(ctx, req)
		if callErr != nil {
			return callErr
		}
		if !r.WellFormed() {
			return apperr.New(apperr.KindTransient, "MALFORMED_RESULT", "adapter returned an incomplete result", nil)
		}
		result = r
		return nil
	})
	latencyMs := time.Since(start).Milliseconds()
	end(err == nil, latencyMs, 0)

	if err != nil {
		span.RecordError(err)
	} else {
		span.SetAttributes(attribute.String("status", string(result.Status)))
	}

	return result, err
}

func (o *Orchestrator) finalize(ctx context.Context, req *models.PaymentRequest, adapter adapters.Adapter, result *models.PaymentResult) {
	result.Metadata.AdapterName = adapter.AdapterName()
	result.Metadata.ProviderType = string(adapter.ProviderType())

	o.idempo.Store(ctx, req.IdempotencyKey, result)

	tx := resultToTransaction(req, result)
	if err := o.txRepo.Upsert(ctx, tx); err != nil && apperr.KindOf(err) != apperr.KindIntegrity {
		o.logger.Warn("orchestrator: failed to persist transaction", zap.String("idempotencyKey", req.IdempotencyKey), zap.Error(err))
	}

	eventType := models.EventPaymentCompleted
	if !result.Status.IsTerminalSuccess() {
		eventType = models.EventPaymentFailed
	}
	o.publishAsync(ctx, req, result, eventType)
}

// publishAsync never blocks request completion on delivery confirmation
// (§4.8) — publish failures are logged by the bus and swallowed here.
func (o *Orchestrator) publishAsync(ctx context.Context, req *models.PaymentRequest, result *models.PaymentResult, eventType models.EventType) {
	if o.bus == nil {
		return
	}
	event := buildEvent(req, result, eventType)
	go func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.bus.Publish(publishCtx, paymentEventTopic, req.IdempotencyKey, event); err != nil {
			o.logger.Warn("orchestrator: event publish failed", zap.String("eventType", string(eventType)), zap.Error(err))
		}
	}()
}

func buildEvent(req *models.PaymentRequest, result *models.PaymentResult, eventType models.EventType) models.PaymentEvent {
	event := models.PaymentEvent{
		EventID:           fmt.Sprintf("%s-%s-%d", req.IdempotencyKey, eventType, time.Now().UnixNano()),
		IdempotencyKey:    req.IdempotencyKey,
		CorrelationID:     req.CorrelationID,
		ProviderType:      req.ProviderType,
		Amount:            req.Amount,
		CurrencyCode:      req.CurrencyCode,
		MerchantReference: req.MerchantReference,
		CustomerID:        req.CustomerID,
		Email:             req.Email,
		ClientIP:          req.ClientIP,
		Timestamp:         time.Now().UTC(),
		EventType:         eventType,
	}
	if result != nil {
		event.ProviderTransactionID = result.ProviderTransactionID
		event.Status = result.Status
		event.FailureCode = result.FailureCode
		event.Message = result.Message
		if result.CardIdentity != nil {
			event.CardFingerprint = result.CardIdentity.CardFingerprint
			event.CardBin = result.CardIdentity.CardBin
			event.CardLast4 = result.CardIdentity.CardLast4
		}
	}
	return event
}

func resultToTransaction(req *models.PaymentRequest, result *models.PaymentResult) *models.Transaction {
	return &models.Transaction{
		IdempotencyKey:        req.IdempotencyKey,
		TransactionID:         result.ProviderTransactionID,
		MerchantReference:     req.MerchantReference,
		CustomerID:            req.CustomerID,
		Amount:                result.Amount,
		CurrencyCode:          result.CurrencyCode,
		ProviderType:          req.ProviderType,
		ProviderTransactionID: result.ProviderTransactionID,
		Status:                result.Status,
		FailureCode:           result.FailureCode,
		FailureMessage:        result.Message,
		CorrelationID:         req.CorrelationID,
		AdapterName:           result.Metadata.AdapterName,
	}
}

// TransactionToResult converts a durable transaction row to a PaymentResult,
// used both for the mid-failover race-closing read above and as the
// idempotency store's durable-tier lookup conversion (wired at composition
// time, since DurableLookup has no access to the original request).
func TransactionToResult(tx *models.Transaction) *models.PaymentResult {
	return &models.PaymentResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        tx.IdempotencyKey,
		ProviderTransactionID: tx.ProviderTransactionID,
		Status:                tx.Status,
		Amount:                tx.Amount,
		CurrencyCode:          tx.CurrencyCode,
		FailureCode:           tx.FailureCode,
		Message:               tx.FailureMessage,
		Timestamp:             tx.UpdatedAt,
		Metadata: models.PaymentResultMetadata{
			AdapterName:  tx.AdapterName,
			ProviderType: string(tx.ProviderType),
		},
	}
}

func permanentFailureResult(req *models.PaymentRequest, adapter adapters.Adapter, err error) *models.PaymentResult {
	appErr, _ := err.(*apperr.Error)
	code, msg := "ADAPTER_DECLINED", err.Error()
	if appErr != nil {
		code, msg = appErr.Code, appErr.Message
	}
	return &models.PaymentResult{
		SchemaVersion:  models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey: req.IdempotencyKey,
		Status:         models.StatusFailed,
		Amount:         req.Amount,
		CurrencyCode:   req.CurrencyCode,
		FailureCode:    code,
		Message:        msg,
		Timestamp:      time.Now().UTC(),
		Metadata: models.PaymentResultMetadata{
			AdapterName:  adapter.AdapterName(),
			ProviderType: string(adapter.ProviderType()),
		},
	}
}
