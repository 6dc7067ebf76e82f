// Package refund implements the refund orchestrator from §4.7: its own
// idempotency namespace, original-payment resolution, the single- and
// cumulative-refund bound invariants (I2/I3), adapter resolution from the
// original payment's recorded adapter, and persistence. The cumulative
// bound's read-sum-then-persist sequence is serialized per payment key via
// repository.RefundRepository.WithPaymentLock, grounded on the
// idempotency-key-and-lock idiom in the ficmart reference refund service
// (other_examples/a0adc8fb_DanielPopoola-ficmart-payment-gateway).
package refund

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lexure-intelligence/payment-watchdog/internal/adapters"
	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/idempotency"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
)

type Orchestrator struct {
	registry *adapters.Registry
	idempo   *idempotency.Store[models.RefundResult, *models.RefundResult]
	txRepo   *repository.TransactionRepository
	refRepo  *repository.RefundRepository
	logger   *zap.Logger
}

func New(
	registry *adapters.Registry,
	idempo *idempotency.Store[models.RefundResult, *models.RefundResult],
	txRepo *repository.TransactionRepository,
	refRepo *repository.RefundRepository,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{registry: registry, idempo: idempo, txRepo: txRepo, refRepo: refRepo, logger: logger}
}

// Execute implements §4.7's contract.
func (o *Orchestrator) Execute(ctx context.Context, req *models.RefundRequest) (*models.RefundResult, error) {
	// 1. Refund idempotency (separate namespace).
	if prior, ok := o.idempo.GetCached(ctx, req.IdempotencyKey); ok {
		return prior, nil
	}

	// 2. Resolve original payment.
	payment, err := o.txRepo.FindByKey(ctx, req.PaymentIdempotencyKey)
	if err != nil {
		return o.fail(ctx, req, models.FailureAdapterNotFound, "failed to resolve original payment"), nil
	}
	if payment == nil || !payment.Status.IsTerminalSuccess() || payment.Status == models.StatusReversed {
		return o.fail(ctx, req, models.FailureInvalidResult, "original payment not found, not successful, or already reversed"), nil
	}

	// 3. Resolve refund amount.
	amount := payment.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}

	// 4. Single-refund bound.
	if amount > payment.Amount {
		return o.fail(ctx, req, models.FailureRefundAmountExceeded,
			fmt.Sprintf("refund amount %.2f exceeds payment amount %.2f", amount, payment.Amount)), nil
	}

	// 6. Adapter resolution (ahead of the locked section — read-only).
	adapter, ok := o.resolveAdapter(payment)
	if !ok {
		return o.fail(ctx, req, models.FailureAdapterNotFound, "no adapter available to process this refund"), nil
	}
	// 7. Refund capability is learned from the adapter's Refund call inside
	// the locked section below: a nil result means refunds are unsupported.

	var result *models.RefundResult
	persist := func(tx *gorm.DB, r *models.RefundResult) error {
		row := resultToRow(r)
		row.Reason = req.Reason
		row.MerchantReference = req.MerchantReference
		row.CorrelationID = req.CorrelationID
		return o.refRepo.Insert(ctx, tx, row)
	}

	lockErr := o.refRepo.WithPaymentLock(ctx, req.PaymentIdempotencyKey, func(tx *gorm.DB) error {
		// 5. Cumulative bound, evaluated under the lock so concurrent
		// refunds against the same payment serialize (I2).
		total, err := o.refRepo.SumSuccessfulRefunds(ctx, req.PaymentIdempotencyKey)
		if err != nil {
			return err
		}
		if total+amount > payment.Amount {
			remaining := payment.Amount - total
			result = failureResult(req, amount, models.FailureRefundLimitExceeded,
				fmt.Sprintf("Already refunded: %.2f %s, Remaining: %.2f %s", total, payment.CurrencyCode, remaining, payment.CurrencyCode))
			return persist(tx, result)
		}

		// 8. Invoke adapter with the resolved amount.
		adapterResult, err := adapter.Refund(ctx, req, amount, payment.ProviderTransactionID)
		if err != nil {
			result = failureResult(req, amount, models.FailureRefundExecutionError, err.Error())
			return persist(tx, result)
		}
		if adapterResult == nil {
			result = failureResult(req, amount, models.FailureRefundNotSupported, "adapter does not support refunds")
			return persist(tx, result)
		}

		result = adapterResult
		return persist(tx, result)
	})

	if lockErr != nil && apperr.KindOf(lockErr) != apperr.KindIntegrity {
		o.logger.Warn("refund: locked transaction failed", zap.String("paymentIdempotencyKey", req.PaymentIdempotencyKey), zap.Error(lockErr))
		return o.fail(ctx, req, models.FailureRefundExecutionError, "failed to persist refund"), nil
	}

	o.idempo.Store(ctx, req.IdempotencyKey, result)
	return result, nil
}

// resolveAdapter uses the payment's recorded adapterName, falling back to
// any healthy adapter of the same provider type (§4.7 step 6).
func (o *Orchestrator) resolveAdapter(payment *models.Transaction) (adapters.Adapter, bool) {
	if payment.AdapterName != "" {
		if a, ok := o.registry.ByName(payment.AdapterName); ok {
			return a, true
		}
	}
	candidates := o.registry.HealthyOfType(payment.ProviderType)
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[0], true
}

func (o *Orchestrator) fail(ctx context.Context, req *models.RefundRequest, code, message string) *models.RefundResult {
	result := failureResult(req, 0, code, message)
	o.idempo.Store(ctx, req.IdempotencyKey, result)
	return result
}

func failureResult(req *models.RefundRequest, amount float64, code, message string) *models.RefundResult {
	return &models.RefundResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		PaymentIdempotencyKey: req.PaymentIdempotencyKey,
		Status:                models.RefundFailed,
		Amount:                amount,
		CurrencyCode:          req.CurrencyCode,
		FailureCode:           code,
		Message:               message,
		Timestamp:             time.Now().UTC(),
	}
}

func resultToRow(result *models.RefundResult) *models.Refund {
	return &models.Refund{
		RefundIdempotencyKey:  result.IdempotencyKey,
		PaymentIdempotencyKey: result.PaymentIdempotencyKey,
		ProviderRefundID:      result.ProviderRefundID,
		Status:                result.Status,
		Amount:                result.Amount,
		CurrencyCode:          result.CurrencyCode,
		FailureCode:           result.FailureCode,
		FailureMessage:        result.Message,
	}
}

// RowToResult converts a durable refund row back to a RefundResult, used as
// the refund idempotency store's durable-tier lookup conversion (wired at
// composition time).
func RowToResult(row *models.Refund) *models.RefundResult {
	return &models.RefundResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        row.RefundIdempotencyKey,
		PaymentIdempotencyKey: row.PaymentIdempotencyKey,
		ProviderRefundID:      row.ProviderRefundID,
		Status:                row.Status,
		Amount:                row.Amount,
		CurrencyCode:          row.CurrencyCode,
		FailureCode:           row.FailureCode,
		Message:               row.FailureMessage,
		Timestamp:             row.UpdatedAt,
	}
}
