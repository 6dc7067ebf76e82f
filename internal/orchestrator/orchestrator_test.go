package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lexure-intelligence/payment-watchdog/internal/adapters"
	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/breaker"
	"github.com/lexure-intelligence/payment-watchdog/internal/idempotency"
	"github.com/lexure-intelligence/payment-watchdog/internal/metrics"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
	"github.com/lexure-intelligence/payment-watchdog/internal/routing"
)

func newMockRepos(t *testing.T) (*repository.TransactionRepository, *repository.EventRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return repository.NewTransactionRepository(gdb), repository.NewEventRepository(gdb), mock
}

func newOrchestrator(registry *adapters.Registry, txRepo *repository.TransactionRepository, eventRepo *repository.EventRepository, maxAttempts int, failoverOn bool) *Orchestrator {
	idempo := idempotency.NewStore[models.PaymentResult, *models.PaymentResult](nil, "payment", time.Minute, nil, nil, zap.NewNop())
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), zap.NewNop())
	metricsReg := metrics.NewRegistry()
	return New(registry, breakers, metricsReg, routing.LeastConnections{}, idempo, txRepo, eventRepo, nil, zap.NewNop(), maxAttempts, failoverOn)
}

func TestOrchestrator_Execute_SuccessPersists(t *testing.T) {
	txRepo, eventRepo, mock := newMockRepos(t)
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions"`).WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "payment_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"idempotency_key"}).AddRow("key-1"))
	mock.ExpectCommit()

	a := adapters.NewMockAdapter("mock-primary", models.ProviderMock)
	registry := adapters.NewRegistry(a)
	orch := newOrchestrator(registry, txRepo, eventRepo, 3, true)

	result, err := orch.Execute(context.Background(), &models.PaymentRequest{
		IdempotencyKey: "key-1", ProviderType: models.ProviderMock, Amount: 10, CurrencyCode: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "mock-primary", result.Metadata.AdapterName)
	assert.Equal(t, int64(1), a.Invocations())
}

// decliningAdapter always returns a KindPermanent error, exercising the
// "permanent failure stops failover" branch MockAdapter has no hook for.
type decliningAdapter struct {
	name string
}

func (d *decliningAdapter) ProviderType() models.ProviderType { return models.ProviderMock }
func (d *decliningAdapter) AdapterName() string               { return d.name }
func (d *decliningAdapter) IsHealthy() bool                   { return true }
func (d *decliningAdapter) Execute(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	return nil, apperr.New(apperr.KindPermanent, "CARD_DECLINED", "card declined by issuer", nil)
}
func (d *decliningAdapter) Refund(ctx context.Context, req *models.RefundRequest, amount float64, providerTransactionID string) (*models.RefundResult, error) {
	return nil, nil
}

func TestOrchestrator_Execute_PermanentFailureSkipsFailover(t *testing.T) {
	txRepo, eventRepo, mock := newMockRepos(t)
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions"`).WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "payment_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"idempotency_key"}).AddRow("key-2"))
	mock.ExpectCommit()

	declining := &decliningAdapter{name: "mock-declining"}
	secondary := adapters.NewMockAdapter("mock-secondary", models.ProviderMock)
	registry := adapters.NewRegistry(declining, secondary)
	orch := newOrchestrator(registry, txRepo, eventRepo, 3, true)

	result, err := orch.Execute(context.Background(), &models.PaymentRequest{
		IdempotencyKey: "key-2", ProviderType: models.ProviderMock, Amount: 10, CurrencyCode: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, "CARD_DECLINED", result.FailureCode)
	assert.Equal(t, int64(0), secondary.Invocations())
}

func TestOrchestrator_Execute_FailsOverToSecondAdapter(t *testing.T) {
	txRepo, eventRepo, mock := newMockRepos(t)
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions"`).WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions"`).WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "payment_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"idempotency_key"}).AddRow("key-3"))
	mock.ExpectCommit()

	failing := adapters.NewMockAdapter("mock-failing", models.ProviderMock)
	// Enough forced failures to exhaust the breaker's in-call retries
	// (DefaultConfig: 3 attempts) so the orchestrator fails over.
	failing.FailNext(3)
	healthy := adapters.NewMockAdapter("mock-healthy", models.ProviderMock)
	registry := adapters.NewRegistry(failing, healthy)
	orch := newOrchestrator(registry, txRepo, eventRepo, 2, true)

	result, err := orch.Execute(context.Background(), &models.PaymentRequest{
		IdempotencyKey: "key-3", ProviderType: models.ProviderMock, Amount: 10, CurrencyCode: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "mock-healthy", result.Metadata.AdapterName)
	assert.Equal(t, int64(3), failing.Invocations())
	assert.Equal(t, int64(1), healthy.Invocations())
}

func TestOrchestrator_Execute_NoHealthyAdapterReturnsNoPspAvailable(t *testing.T) {
	txRepo, eventRepo, _ := newMockRepos(t)
	unhealthy := adapters.NewMockAdapter("mock-unhealthy", models.ProviderMock)
	unhealthy.SetHealthy(false)
	registry := adapters.NewRegistry(unhealthy)
	orch := newOrchestrator(registry, txRepo, eventRepo, 3, true)

	result, err := orch.Execute(context.Background(), &models.PaymentRequest{
		IdempotencyKey: "key-4", ProviderType: models.ProviderMock, Amount: 10, CurrencyCode: "USD",
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestOrchestrator_Execute_FailoverDisabledStopsAtOneAttempt(t *testing.T) {
	txRepo, eventRepo, mock := newMockRepos(t)
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions"`).WillReturnRows(sqlmock.NewRows(nil))
	failing := adapters.NewMockAdapter("mock-failing", models.ProviderMock)
	failing.FailNext(100)
	healthy := adapters.NewMockAdapter("mock-healthy", models.ProviderMock)
	registry := adapters.NewRegistry(failing, healthy)
	orch := newOrchestrator(registry, txRepo, eventRepo, 3, false)

	_, err := orch.Execute(context.Background(), &models.PaymentRequest{
		IdempotencyKey: "key-5", ProviderType: models.ProviderMock, Amount: 10, CurrencyCode: "USD",
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), healthy.Invocations())
}

func TestTransactionToResult(t *testing.T) {
	now := time.Now()
	tx := &models.Transaction{
		IdempotencyKey: "key-1", Status: models.StatusSuccess, Amount: 10, CurrencyCode: "USD",
		AdapterName: "mock-primary", ProviderType: models.ProviderMock, UpdatedAt: now,
	}
	result := TransactionToResult(tx)
	assert.Equal(t, "key-1", result.IdempotencyKey)
	assert.Equal(t, "mock-primary", result.Metadata.AdapterName)
	assert.Equal(t, now, result.Timestamp)
}
