package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// StripeAdapter is the CARD provider backed by Stripe PaymentIntents,
// grounded on the teacher's StripeMediator (webhook-driven failure mapping
// and risk scoring) but generalized into a synchronous Execute/Refund
// adapter since the orchestrator calls adapters directly rather than
// waiting on webhooks (§4.1, §4.6).
type StripeAdapter struct {
	name   string
	logger *zap.Logger

	mu      sync.RWMutex
	healthy bool
}

// NewStripeAdapter wires a Stripe-backed CARD adapter. secretKey is set on
// the package-global stripe.Key, matching the teacher's Connect() idiom.
func NewStripeAdapter(name, secretKey string, logger *zap.Logger) *StripeAdapter {
	stripe.Key = secretKey
	return &StripeAdapter{name: name, logger: logger, healthy: true}
}

func (s *StripeAdapter) ProviderType() models.ProviderType { return models.ProviderCard }
func (s *StripeAdapter) AdapterName() string               { return s.name }

func (s *StripeAdapter) Execute(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(int64(req.Amount * 100)),
		Currency:           stripe.String(req.CurrencyCode),
		ConfirmationMethod: stripe.String("automatic"),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(req.MerchantReference),
		PaymentMethod:      stripe.String(stripeTestPaymentMethod(req)),
	}
	params.Context = ctx
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		s.markUnhealthy(err)
		return nil, classifyStripeErr(err)
	}
	s.markHealthy()

	return &models.PaymentResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		ProviderTransactionID: pi.ID,
		Status:                mapStripeStatus(pi.Status),
		Amount:                req.Amount,
		CurrencyCode:          req.CurrencyCode,
		FailureCode:           stripeFailureCode(pi),
		Message:               stripeFailureMessage(pi),
		Timestamp:             time.Now().UTC(),
		CardIdentity:          extractCardIdentity(pi),
	}, nil
}

func (s *StripeAdapter) Refund(ctx context.Context, req *models.RefundRequest, amount float64, providerTransactionID string) (*models.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerTransactionID),
		Amount:        stripe.Int64(int64(amount * 100)),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, classifyStripeErr(err)
	}

	status := models.RefundFailed
	if r.Status == stripe.RefundStatusSucceeded || r.Status == stripe.RefundStatusPending {
		status = models.RefundSuccess
	}

	return &models.RefundResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		PaymentIdempotencyKey: req.PaymentIdempotencyKey,
		ProviderRefundID:      r.ID,
		Status:                status,
		Amount:                amount,
		CurrencyCode:          req.CurrencyCode,
		Timestamp:             time.Now().UTC(),
	}, nil
}

func (s *StripeAdapter) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *StripeAdapter) markUnhealthy(err error) {
	s.mu.Lock()
	s.healthy = false
	s.mu.Unlock()
	s.logger.Warn("stripe adapter call failed", zap.String("adapter", s.name), zap.Error(err))
}

func (s *StripeAdapter) markHealthy() {
	s.mu.Lock()
	s.healthy = true
	s.mu.Unlock()
}

// stripeTestPaymentMethod resolves the payment method token from the
// request payload, defaulting to Stripe's documented always-succeeds test
// token so the adapter is exercisable without live card data.
func stripeTestPaymentMethod(req *models.PaymentRequest) string {
	if req.ProviderPayload != nil {
		if v, ok := req.ProviderPayload["paymentMethod"].(string); ok && v != "" {
			return v
		}
	}
	return "pm_card_visa"
}

func mapStripeStatus(status stripe.PaymentIntentStatus) models.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.StatusSuccess
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusRequiresConfirmation:
		return models.StatusPending
	default:
		return models.StatusFailed
	}
}

func stripeFailureCode(pi *stripe.PaymentIntent) string {
	if pi.LastPaymentError == nil {
		return ""
	}
	return string(pi.LastPaymentError.Code)
}

func stripeFailureMessage(pi *stripe.PaymentIntent) string {
	if pi.LastPaymentError == nil {
		return ""
	}
	return pi.LastPaymentError.Msg
}

func extractCardIdentity(pi *stripe.PaymentIntent) *models.CardIdentity {
	if pi.PaymentMethod == nil || pi.PaymentMethod.Card == nil {
		return nil
	}
	card := pi.PaymentMethod.Card
	return &models.CardIdentity{
		CardBin:         card.Iin,
		CardLast4:       card.Last4,
		CardFingerprint: card.Fingerprint,
	}
}

// classifyStripeErr maps the stripe-go error taxonomy onto the internal
// error kinds (§7): card-level declines are permanent (no retry, no
// failover within the same adapter call), invalid-request errors are
// validation errors, everything else is transient.
func classifyStripeErr(err error) error {
	stripeErr, ok := err.(*stripe.Error)
	if !ok {
		return apperr.New(apperr.KindTransient, "STRIPE_ERROR", "stripe request failed", err)
	}
	switch stripeErr.Type {
	case stripe.ErrorTypeCard:
		return apperr.New(apperr.KindPermanent, string(stripeErr.Code), stripeErr.Msg, err)
	case stripe.ErrorTypeInvalidRequest:
		return apperr.New(apperr.KindValidation, string(stripeErr.Code), stripeErr.Msg, err)
	case stripe.ErrorTypeRateLimit, stripe.ErrorTypeAPIConnection, stripe.ErrorTypeAPI:
		return apperr.New(apperr.KindTransient, string(stripeErr.Code), stripeErr.Msg, err)
	default:
		return apperr.New(apperr.KindTransient, string(stripeErr.Code), stripeErr.Msg, err)
	}
}
