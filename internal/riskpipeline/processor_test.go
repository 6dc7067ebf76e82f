package riskpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lexure-intelligence/payment-watchdog/internal/aggregator"
	"github.com/lexure-intelligence/payment-watchdog/internal/alerts"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
	"github.com/lexure-intelligence/payment-watchdog/internal/risk"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return gdb, mock
}

func newTestProcessor(t *testing.T) (*Processor, sqlmock.Sqlmock) {
	db, mock := newMockGorm(t)
	eventRepo := repository.NewEventRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	agg := aggregator.New()
	engine := risk.NewEngine(agg, risk.NewModelClient("", 50, zap.NewNop()), risk.DefaultThresholds(), false)
	store := alerts.NewStore(alertRepo)
	dispatcher := alerts.NewDispatcher(webhookRepo, zap.NewNop())

	return NewProcessor(nil, agg, engine, eventRepo, store, dispatcher, zap.NewNop()), mock
}

func TestProcessor_Handle_DuplicateEventIsSkipped(t *testing.T) {
	p, mock := newTestProcessor(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "payment_events"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	event := models.PaymentEvent{EventID: "evt-1", Status: models.StatusSuccess, Amount: 10, Timestamp: time.Now()}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	err = p.handle(context.Background(), payload)
	assert.NoError(t, err)
}

func TestProcessor_Handle_MalformedPayloadIsDropped(t *testing.T) {
	p, _ := newTestProcessor(t)
	err := p.handle(context.Background(), []byte("not json"))
	assert.NoError(t, err)
}

func TestProcessor_Handle_RecordsIntoAggregatorAndPersistsAlert(t *testing.T) {
	p, mock := newTestProcessor(t)

	now := time.Now()
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "payment_events"`).
			WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(fmt.Sprintf("evt-%d", i)))
		mock.ExpectCommit()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "risk_alerts"`).
			WillReturnRows(sqlmock.NewRows([]string{"alert_id"}).AddRow(fmt.Sprintf("alert-%d", i)))
		mock.ExpectCommit()

		mock.ExpectQuery(`SELECT \* FROM "webhook_subscriptions"`).
			WillReturnRows(sqlmock.NewRows([]string{"entity_id", "webhook_url"}))

		event := models.PaymentEvent{
			EventID:           fmt.Sprintf("evt-%d", i),
			IdempotencyKey:    fmt.Sprintf("pay-%d", i),
			ProviderType:      models.ProviderCard,
			Status:            models.StatusFailed,
			Amount:            100,
			CurrencyCode:      "USD",
			MerchantReference: "merchant-1",
			Timestamp:         now.Add(time.Duration(i) * time.Second),
			EventType:         models.EventPaymentFailed,
		}
		payload, err := json.Marshal(event)
		require.NoError(t, err)

		err = p.handle(context.Background(), payload)
		require.NoError(t, err)
	}
}
