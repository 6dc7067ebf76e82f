// Package models holds the canonical wire/storage types shared across the
// orchestrator, refund, event-log, and risk packages.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProviderType is the payment category a request is routed within.
type ProviderType string

const (
	ProviderCard         ProviderType = "CARD"
	ProviderWallet       ProviderType = "WALLET"
	ProviderBNPL         ProviderType = "BNPL"
	ProviderBankTransfer ProviderType = "BANK_TRANSFER"
	ProviderMock         ProviderType = "MOCK"
)

// PaymentStatus is the lifecycle status of a PaymentResult.
type PaymentStatus string

const (
	StatusSuccess  PaymentStatus = "SUCCESS"
	StatusCaptured PaymentStatus = "CAPTURED"
	StatusFailed   PaymentStatus = "FAILED"
	StatusReversed PaymentStatus = "REVERSED"
	StatusPending  PaymentStatus = "PENDING"
)

// IsTerminalSuccess reports whether a status represents a completed charge.
func (s PaymentStatus) IsTerminalSuccess() bool {
	return s == StatusSuccess || s == StatusCaptured
}

// TestAdapterOverrideKey is the providerPayload key recognized by the
// orchestrator's failover loop as an explicit test hook. It is read from
// each request's payload; no configuration setting enables or disables it.
// The orchestrator honors it only when it names a healthy, not yet
// attempted adapter of the request's provider type.
const TestAdapterOverrideKey = "testAdapterName"

// PaymentRequest is the immutable canonical request accepted by the
// orchestrator. It is never mutated after construction.
type PaymentRequest struct {
	IdempotencyKey    string                 `json:"idempotencyKey"`
	ProviderType      ProviderType           `json:"providerType"`
	Amount            float64                `json:"amount"`
	CurrencyCode      string                 `json:"currencyCode"`
	MerchantReference string                 `json:"merchantReference"`
	CustomerID        string                 `json:"customerId"`
	Email             string                 `json:"email"`
	ClientIP          string                 `json:"clientIp"`
	CorrelationID     string                 `json:"correlationId"`
	ProviderPayload   map[string]interface{} `json:"providerPayload,omitempty"`

	// OverThreshold is set at ingress by velocity admission control (§5);
	// it never gates orchestration, only downstream logging/shedding.
	OverThreshold bool `json:"-"`
}

// TestAdapterOverride returns the explicit test-adapter hook, if present.
func (r *PaymentRequest) TestAdapterOverride() (string, bool) {
	if r.ProviderPayload == nil {
		return "", false
	}
	v, ok := r.ProviderPayload[TestAdapterOverrideKey]
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok && name != ""
}

// CardIdentity carries optional card-network identity fields attached to a
// CARD PaymentResult, used by the risk aggregator's CARD dimension.
type CardIdentity struct {
	CardBin         string `json:"cardBin,omitempty"`
	CardLast4       string `json:"cardLast4,omitempty"`
	NetworkToken    string `json:"networkToken,omitempty"`
	PAR             string `json:"par,omitempty"`
	CardFingerprint string `json:"cardFingerprint,omitempty"`
}

// PaymentResultMetadata is the adapter/routing attribution recorded on a
// PaymentResult after orchestration (§3).
type PaymentResultMetadata struct {
	AdapterName  string `json:"adapterName,omitempty"`
	ProviderType string `json:"providerType,omitempty"`
}

// PaymentResult is the immutable outcome of a payment attempt, schema
// version 1 (spec §9 — a concrete, versioned JSON schema, not a
// polymorphic blob).
type PaymentResult struct {
	SchemaVersion         int                    `json:"schemaVersion"`
	IdempotencyKey        string                 `json:"idempotencyKey"`
	ProviderTransactionID string                 `json:"providerTransactionId,omitempty"`
	Status                PaymentStatus          `json:"status"`
	Amount                float64                `json:"amount"`
	CurrencyCode          string                 `json:"currencyCode"`
	FailureCode           string                 `json:"failureCode,omitempty"`
	Message               string                 `json:"message,omitempty"`
	Timestamp             time.Time              `json:"timestamp"`
	Metadata              PaymentResultMetadata  `json:"metadata"`
	CardIdentity          *CardIdentity          `json:"cardIdentity,omitempty"`
	Extra                 map[string]interface{} `json:"extra,omitempty"`
}

const CurrentPaymentResultSchemaVersion = 1

// WellFormed reports whether a prior result has the required fields
// populated (§4.2, §4.6 step 1 — corrupted results are treated as miss).
func (r *PaymentResult) WellFormed() bool {
	if r == nil {
		return false
	}
	return r.IdempotencyKey != "" &&
		r.Status != "" &&
		r.Amount > 0 &&
		r.CurrencyCode != "" &&
		!r.Timestamp.IsZero()
}

// Transaction is the durable row backing a logical payment, keyed by
// idempotency key (§6 payment_transactions).
type Transaction struct {
	IdempotencyKey        string `gorm:"primaryKey;column:idempotency_key"`
	TransactionID         string `gorm:"column:transaction_id;uniqueIndex"`
	MerchantReference     string `gorm:"column:merchant_reference;index"`
	CustomerID            string `gorm:"column:customer_id;index"`
	Amount                float64
	CurrencyCode          string `gorm:"column:currency_code"`
	ProviderType          ProviderType `gorm:"column:provider_type"`
	ProviderTransactionID string       `gorm:"column:provider_transaction_id"`
	Status                PaymentStatus
	FailureCode           string `gorm:"column:failure_code"`
	FailureMessage        string `gorm:"column:failure_message"`
	CorrelationID         string `gorm:"column:correlation_id"`
	AdapterName           string `gorm:"column:adapter_name"`
	ResultPayload         datatypes.JSONMap `gorm:"column:result_payload"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (Transaction) TableName() string { return "payment_transactions" }
