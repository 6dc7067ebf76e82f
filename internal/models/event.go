package models

import "time"

// EventType enumerates the payment lifecycle transitions published to the
// event log (§4.8).
type EventType string

const (
	EventPaymentRequested EventType = "PAYMENT_REQUESTED"
	EventPaymentCompleted EventType = "PAYMENT_COMPLETED"
	EventPaymentFailed    EventType = "PAYMENT_FAILED"
)

// PaymentEvent is the immutable, append-only unit published per lifecycle
// transition and consumed by the risk pipeline (§3, §4.8).
type PaymentEvent struct {
	EventID               string        `json:"eventId"`
	IdempotencyKey        string        `json:"idempotencyKey"`
	CorrelationID         string        `json:"correlationId,omitempty"`
	ProviderType          ProviderType  `json:"providerType"`
	ProviderTransactionID string        `json:"providerTransactionId,omitempty"`
	Status                PaymentStatus `json:"status"`
	Amount                float64       `json:"amount"`
	CurrencyCode          string        `json:"currencyCode"`
	FailureCode           string        `json:"failureCode,omitempty"`
	Message               string        `json:"message,omitempty"`
	MerchantReference     string        `json:"merchantReference"`
	CustomerID            string        `json:"customerId,omitempty"`
	Email                 string        `json:"email,omitempty"`
	ClientIP              string        `json:"clientIp,omitempty"`
	CardFingerprint       string        `json:"cardFingerprint,omitempty"`
	CardBin               string        `json:"cardBin,omitempty"`
	CardLast4             string        `json:"cardLast4,omitempty"`
	Timestamp             time.Time     `json:"timestamp"`
	EventType             EventType     `json:"eventType"`
}

// PersistedEvent is the durable row for a PaymentEvent (§6 payment_events).
type PersistedEvent struct {
	EventID               string `gorm:"primaryKey;column:event_id"`
	IdempotencyKey        string `gorm:"column:idempotency_key;index"`
	CorrelationID         string `gorm:"column:correlation_id"`
	EventType             EventType `gorm:"column:event_type"`
	ProviderType          ProviderType `gorm:"column:provider_type"`
	ProviderTransactionID string       `gorm:"column:provider_transaction_id"`
	Status                PaymentStatus
	Amount                float64
	CurrencyCode          string `gorm:"column:currency_code"`
	FailureCode           string `gorm:"column:failure_code"`
	Message               string
	MerchantReference     string    `gorm:"column:merchant_reference;index"`
	CustomerID            string    `gorm:"column:customer_id"`
	Timestamp             time.Time `gorm:"column:timestamp"`
	CreatedAt             time.Time `gorm:"column:created_at"`
}

func (PersistedEvent) TableName() string { return "payment_events" }

// ToPersisted converts a wire event to its durable row.
func (e *PaymentEvent) ToPersisted() *PersistedEvent {
	return &PersistedEvent{
		EventID:               e.EventID,
		IdempotencyKey:        e.IdempotencyKey,
		CorrelationID:         e.CorrelationID,
		EventType:             e.EventType,
		ProviderType:          e.ProviderType,
		ProviderTransactionID: e.ProviderTransactionID,
		Status:                e.Status,
		Amount:                e.Amount,
		CurrencyCode:          e.CurrencyCode,
		FailureCode:           e.FailureCode,
		Message:               e.Message,
		MerchantReference:     e.MerchantReference,
		CustomerID:            e.CustomerID,
		Timestamp:             e.Timestamp,
	}
}
