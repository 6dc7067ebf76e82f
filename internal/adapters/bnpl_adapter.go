package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// BNPLAdapter is the BNPL provider type: a plain API-key-authenticated HTTP
// integration, the simplest of the four PSP adapters (no OAuth, no SDK).
type BNPLAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewBNPLAdapter(name, baseURL, apiKey string) *BNPLAdapter {
	return &BNPLAdapter{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BNPLAdapter) ProviderType() models.ProviderType { return models.ProviderBNPL }
func (b *BNPLAdapter) AdapterName() string               { return b.name }

type bnplInstallmentRequest struct {
	IdempotencyKey string  `json:"idempotencyKey"`
	Amount         float64 `json:"amount"`
	CurrencyCode   string  `json:"currencyCode"`
	CustomerID     string  `json:"customerId"`
}

type bnplInstallmentResponse struct {
	PlanID        string `json:"planId"`
	Status        string `json:"status"`
	DeclineReason string `json:"declineReason"`
}

func (b *BNPLAdapter) Execute(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	payload, _ := json.Marshal(bnplInstallmentRequest{
		IdempotencyKey: req.IdempotencyKey,
		Amount:         req.Amount,
		CurrencyCode:   req.CurrencyCode,
		CustomerID:     req.CustomerID,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/installment-plans", bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, "BNPL_REQUEST_BUILD", "failed to build bnpl request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, "BNPL_UNREACHABLE", "bnpl provider unreachable", err)
	}
	defer resp.Body.Close()

	var parsed bnplInstallmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.New(apperr.KindTransient, "BNPL_BAD_RESPONSE", "failed to decode bnpl response", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, apperr.New(apperr.KindPermanent, "BNPL_DECLINED", parsed.DeclineReason, nil)
	}
	if resp.StatusCode >= 500 {
		return nil, apperr.New(apperr.KindTransient, "BNPL_5XX", "bnpl provider unavailable", nil)
	}

	return &models.PaymentResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		ProviderTransactionID: parsed.PlanID,
		Status:                mapBNPLStatus(parsed.Status),
		Amount:                req.Amount,
		CurrencyCode:          req.CurrencyCode,
		Message:               parsed.DeclineReason,
		Timestamp:             time.Now().UTC(),
	}, nil
}

// Refund declares the capability unsupported: installment plans are
// cancelled through a separate lender workflow, not a point-in-time refund.
func (b *BNPLAdapter) Refund(ctx context.Context, req *models.RefundRequest, amount float64, providerTransactionID string) (*models.RefundResult, error) {
	return nil, nil
}

func (b *BNPLAdapter) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func mapBNPLStatus(status string) models.PaymentStatus {
	switch status {
	case "approved", "active":
		return models.StatusSuccess
	case "under_review":
		return models.StatusPending
	default:
		return models.StatusFailed
	}
}
