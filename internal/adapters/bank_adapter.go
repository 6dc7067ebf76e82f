package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// BankAdapter is the BANK_TRANSFER provider type. Bank rails are slow and
// occasionally flaky on the transport layer (not the business outcome), so
// this adapter carries its own bounded HTTP-level retry via retryablehttp
// rather than relying solely on the breaker's retry wrapper (§4.3's retry
// budget governs adapter-call retries; this is a lower-level transport
// retry for connection resets, grounded on the same library the teacher's
// go.mod already pulls in as an indirect dependency of its sync clients).
type BankAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

func NewBankAdapter(name, baseURL, apiKey string, logger *zap.Logger) *BankAdapter {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.Logger = nil
	if logger != nil {
		client.Logger = newRetryableLogAdapter(logger)
	}
	return &BankAdapter{name: name, baseURL: baseURL, apiKey: apiKey, client: client}
}

func (b *BankAdapter) ProviderType() models.ProviderType { return models.ProviderBankTransfer }
func (b *BankAdapter) AdapterName() string               { return b.name }

type bankTransferRequest struct {
	IdempotencyKey string  `json:"idempotencyKey"`
	Amount         float64 `json:"amount"`
	CurrencyCode   string  `json:"currencyCode"`
}

type bankTransferResponse struct {
	TransferID  string `json:"transferId"`
	Status      string `json:"status"`
	FailureCode string `json:"failureCode"`
	Reason      string `json:"reason"`
}

func (b *BankAdapter) Execute(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	body, _ := json.Marshal(bankTransferRequest{
		IdempotencyKey: req.IdempotencyKey,
		Amount:         req.Amount,
		CurrencyCode:   req.CurrencyCode,
	})

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/transfers", body)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, "BANK_REQUEST_BUILD", "failed to build bank transfer request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, "BANK_UNREACHABLE", "bank rail unreachable", err)
	}
	defer resp.Body.Close()

	var parsed bankTransferResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.New(apperr.KindTransient, "BANK_BAD_RESPONSE", "failed to decode bank response", err)
	}

	if resp.StatusCode >= 500 {
		return nil, apperr.New(apperr.KindTransient, "BANK_5XX", fmt.Sprintf("bank rail returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.KindPermanent, parsed.FailureCode, parsed.Reason, nil)
	}

	return &models.PaymentResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		ProviderTransactionID: parsed.TransferID,
		Status:                mapBankStatus(parsed.Status),
		Amount:                req.Amount,
		CurrencyCode:          req.CurrencyCode,
		FailureCode:           parsed.FailureCode,
		Message:               parsed.Reason,
		Timestamp:             time.Now().UTC(),
	}, nil
}

// Refund declares the capability unsupported: bank transfers settle via a
// separate reversal instruction outside this platform's refund namespace
// (§4.7 scope — adapters without refund support return (nil, nil)).
func (b *BankAdapter) Refund(ctx context.Context, req *models.RefundRequest, amount float64, providerTransactionID string) (*models.RefundResult, error) {
	return nil, nil
}

func (b *BankAdapter) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
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

func mapBankStatus(status string) models.PaymentStatus {
	switch status {
	case "settled", "completed":
		return models.StatusSuccess
	case "pending", "processing":
		return models.StatusPending
	default:
		return models.StatusFailed
	}
}

// retryableLogAdapter bridges retryablehttp's leveled logger interface to
// zap, matching the teacher's convention of routing every library's log
// output through one structured logger.
type retryableLogAdapter struct {
	logger *zap.SugaredLogger
}

func newRetryableLogAdapter(logger *zap.Logger) retryablehttp.LeveledLogger {
	return &retryableLogAdapter{logger: logger.Sugar()}
}

func (r *retryableLogAdapter) Error(msg string, keysAndValues ...interface{}) {
	r.logger.Errorw(msg, keysAndValues...)
}
func (r *retryableLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	r.logger.Infow(msg, keysAndValues...)
}
func (r *retryableLogAdapter) Debug(msg string, keysAndValues ...interface{}) {
	r.logger.Debugw(msg, keysAndValues...)
}
func (r *retryableLogAdapter) Warn(msg string, keysAndValues ...interface{}) {
	r.logger.Warnw(msg, keysAndValues...)
}
