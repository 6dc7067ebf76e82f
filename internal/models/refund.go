package models

import "time"

// RefundStatus is the lifecycle status of a RefundResult.
type RefundStatus string

const (
	RefundSuccess RefundStatus = "SUCCESS"
	RefundFailed  RefundStatus = "FAILED"
	RefundPending RefundStatus = "PENDING"
)

// Refund failure codes (§4.7, §6).
const (
	FailureRefundAmountExceeded = "REFUND_AMOUNT_EXCEEDED"
	FailureRefundLimitExceeded  = "REFUND_LIMIT_EXCEEDED"
	FailureAdapterNotFound      = "ADAPTER_NOT_FOUND"
	FailureRefundNotSupported   = "REFUND_NOT_SUPPORTED"
	FailureInvalidResult        = "INVALID_RESULT"
	FailureRefundExecutionError = "REFUND_EXECUTION_FAILED"
)

// RefundRequest is the immutable canonical refund request.
type RefundRequest struct {
	IdempotencyKey        string   `json:"idempotencyKey"`
	PaymentIdempotencyKey string   `json:"paymentIdempotencyKey"`
	Amount                *float64 `json:"amount,omitempty"`
	CurrencyCode          string   `json:"currencyCode"`
	Reason                string   `json:"reason,omitempty"`
	MerchantReference     string   `json:"merchantReference,omitempty"`
	CorrelationID         string   `json:"correlationId,omitempty"`
}

// RefundResult mirrors PaymentResult for the refund namespace.
type RefundResult struct {
	SchemaVersion         int           `json:"schemaVersion"`
	IdempotencyKey        string        `json:"idempotencyKey"`
	PaymentIdempotencyKey string        `json:"paymentIdempotencyKey"`
	ProviderRefundID      string        `json:"providerRefundId,omitempty"`
	Status                RefundStatus  `json:"status"`
	Amount                float64       `json:"amount"`
	CurrencyCode          string        `json:"currencyCode"`
	FailureCode           string        `json:"failureCode,omitempty"`
	Message               string        `json:"message,omitempty"`
	Timestamp             time.Time     `json:"timestamp"`
}

// WellFormed mirrors PaymentResult.WellFormed for the refund idempotency check.
func (r *RefundResult) WellFormed() bool {
	if r == nil {
		return false
	}
	return r.IdempotencyKey != "" && r.Status != "" && !r.Timestamp.IsZero()
}

// Refund is the durable row for a refund attempt (§6 refunds).
type Refund struct {
	RefundIdempotencyKey  string `gorm:"primaryKey;column:refund_idempotency_key"`
	PaymentIdempotencyKey string `gorm:"column:payment_idempotency_key;index"`
	ProviderRefundID      string `gorm:"column:provider_refund_id"`
	Status                RefundStatus
	Amount                float64
	CurrencyCode          string `gorm:"column:currency_code"`
	FailureCode           string `gorm:"column:failure_code"`
	FailureMessage        string `gorm:"column:failure_message"`
	Reason                string
	MerchantReference     string `gorm:"column:merchant_reference"`
	CorrelationID         string `gorm:"column:correlation_id"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (Refund) TableName() string { return "refunds" }
