package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// WalletAdapter is the WALLET provider type. It reuses the teacher's OAuth
// mediator shape (client credentials against a token endpoint, cached
// token transport) rather than its Xero/QuickBooks ledger semantics — the
// ledger/settlement integrations themselves are out of scope (§4 domain
// stack, Xero/QuickBooks non-goal), but the ubiquitous OAuth-provider
// pattern in this corpus is exactly how a wallet PSP (PayPal-style) is
// authenticated.
type WalletAdapter struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// WalletConfig is the subset of OAuthConfig the wallet adapter needs.
type WalletConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	BaseURL      string
}

func NewWalletAdapter(name string, cfg WalletConfig) *WalletAdapter {
	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return &WalletAdapter{
		name:       name,
		baseURL:    cfg.BaseURL,
		httpClient: oauthCfg.Client(context.Background()),
	}
}

func (w *WalletAdapter) ProviderType() models.ProviderType { return models.ProviderWallet }
func (w *WalletAdapter) AdapterName() string               { return w.name }

type walletChargeRequest struct {
	IdempotencyKey string  `json:"idempotencyKey"`
	Amount         float64 `json:"amount"`
	CurrencyCode   string  `json:"currencyCode"`
	MerchantRef    string  `json:"merchantReference"`
}

type walletChargeResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	FailureCode   string `json:"failureCode"`
	FailureReason string `json:"failureReason"`
}

func (w *WalletAdapter) Execute(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	body, _ := json.Marshal(walletChargeRequest{
		IdempotencyKey: req.IdempotencyKey,
		Amount:         req.Amount,
		CurrencyCode:   req.CurrencyCode,
		MerchantRef:    req.MerchantReference,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, "WALLET_REQUEST_BUILD", "failed to build wallet request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, "WALLET_UNREACHABLE", "wallet provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperr.New(apperr.KindTransient, "WALLET_5XX", fmt.Sprintf("wallet provider returned %d", resp.StatusCode), nil)
	}

	var parsed walletChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.New(apperr.KindTransient, "WALLET_BAD_RESPONSE", "failed to decode wallet response", err)
	}

	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.KindPermanent, parsed.FailureCode, parsed.FailureReason, nil)
	}

	return &models.PaymentResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		ProviderTransactionID: parsed.TransactionID,
		Status:                mapWalletStatus(parsed.Status),
		Amount:                req.Amount,
		CurrencyCode:          req.CurrencyCode,
		FailureCode:           parsed.FailureCode,
		Message:               parsed.FailureReason,
		Timestamp:             time.Now().UTC(),
	}, nil
}

func (w *WalletAdapter) Refund(ctx context.Context, req *models.RefundRequest, amount float64, providerTransactionID string) (*models.RefundResult, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"transactionId": providerTransactionID,
		"amount":        amount,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, "WALLET_REQUEST_BUILD", "failed to build wallet refund request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, "WALLET_UNREACHABLE", "wallet provider unreachable", err)
	}
	defer resp.Body.Close()

	var parsed walletChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.New(apperr.KindTransient, "WALLET_BAD_RESPONSE", "failed to decode wallet refund response", err)
	}

	status := models.RefundFailed
	if resp.StatusCode < 300 {
		status = models.RefundSuccess
	}

	return &models.RefundResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		PaymentIdempotencyKey: req.PaymentIdempotencyKey,
		ProviderRefundID:      parsed.TransactionID,
		Status:                status,
		Amount:                amount,
		CurrencyCode:          req.CurrencyCode,
		Timestamp:             time.Now().UTC(),
	}, nil
}

func (w *WalletAdapter) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func mapWalletStatus(status string) models.PaymentStatus {
	switch status {
	case "completed", "captured":
		return models.StatusSuccess
	case "pending":
		return models.StatusPending
	default:
		return models.StatusFailed
	}
}
