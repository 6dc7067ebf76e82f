package adapters

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// MockAdapter is a deterministic, test-oriented adapter used for the MOCK
// provider type and as the vehicle for orchestrator/breaker tests (spec
// §2's "Adapter interface & mock adapters" line item). Its behavior is
// driven entirely by fields the caller sets, never by randomness.
type MockAdapter struct {
	Name string
	Type models.ProviderType

	mu           sync.Mutex
	failNext     int32 // failures remaining to force
	forceHealthy *bool
	latency      time.Duration
	refundable   bool

	invocations int64
}

// NewMockAdapter constructs a healthy, successful-by-default mock adapter.
func NewMockAdapter(name string, pt models.ProviderType) *MockAdapter {
	return &MockAdapter{Name: name, Type: pt, refundable: true}
}

func (m *MockAdapter) ProviderType() models.ProviderType { return m.Type }
func (m *MockAdapter) AdapterName() string               { return m.Name }

// FailNext forces the next n Execute calls to return a transient failure.
func (m *MockAdapter) FailNext(n int) {
	atomic.StoreInt32(&m.failNext, int32(n))
}

// SetHealthy overrides IsHealthy for testing adapters that are unhealthy
// independent of breaker state.
func (m *MockAdapter) SetHealthy(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceHealthy = &v
}

// SetLatency makes Execute sleep for d before returning, for
// ResponseTimeBased routing tests.
func (m *MockAdapter) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// SetRefundable controls whether Refund returns a result or declares the
// capability unsupported.
func (m *MockAdapter) SetRefundable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refundable = v
}

func (m *MockAdapter) Invocations() int64 { return atomic.LoadInt64(&m.invocations) }

func (m *MockAdapter) Execute(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	atomic.AddInt64(&m.invocations, 1)

	m.mu.Lock()
	latency := m.latency
	m.mu.Unlock()
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if remaining := atomic.LoadInt32(&m.failNext); remaining > 0 {
		atomic.AddInt32(&m.failNext, -1)
		return nil, fmt.Errorf("mock adapter %s: simulated downstream failure", m.Name)
	}

	return &models.PaymentResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		ProviderTransactionID: "mock_" + uuid.NewString(),
		Status:                models.StatusSuccess,
		Amount:                req.Amount,
		CurrencyCode:          req.CurrencyCode,
		Timestamp:             time.Now().UTC(),
	}, nil
}

func (m *MockAdapter) Refund(ctx context.Context, req *models.RefundRequest, amount float64, providerTransactionID string) (*models.RefundResult, error) {
	m.mu.Lock()
	refundable := m.refundable
	m.mu.Unlock()
	if !refundable {
		return nil, nil
	}
	return &models.RefundResult{
		SchemaVersion:         models.CurrentPaymentResultSchemaVersion,
		IdempotencyKey:        req.IdempotencyKey,
		PaymentIdempotencyKey: req.PaymentIdempotencyKey,
		ProviderRefundID:      "mock_refund_" + uuid.NewString(),
		Status:                models.RefundSuccess,
		Amount:                amount,
		CurrencyCode:          req.CurrencyCode,
		Timestamp:             time.Now().UTC(),
	}, nil
}

func (m *MockAdapter) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forceHealthy != nil {
		return *m.forceHealthy
	}
	return true
}
