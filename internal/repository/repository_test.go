package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return gdb, mock
}

func TestTransactionRepository_FindByKey_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions"`).
		WillReturnRows(sqlmock.NewRows(nil))

	repo := NewTransactionRepository(db)
	tx, err := repo.FindByKey(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_FindByKey_Found(t *testing.T) {
	db, mock := newMockDB(t)
	rows := sqlmock.NewRows([]string{"idempotency_key", "status", "amount", "currency_code"}).
		AddRow("key-1", "SUCCESS", 100.0, "USD")
	mock.ExpectQuery(`SELECT \* FROM "payment_transactions"`).WillReturnRows(rows)

	repo := NewTransactionRepository(db)
	tx, err := repo.FindByKey(context.Background(), "key-1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "key-1", tx.IdempotencyKey)
	assert.Equal(t, models.StatusSuccess, tx.Status)
}

func TestTransactionRepository_Upsert_DuplicateIsIntegrityKind(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "payment_transactions"`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	repo := NewTransactionRepository(db)
	err := repo.Upsert(context.Background(), &models.Transaction{IdempotencyKey: "key-1", Status: models.StatusSuccess})
	require.Error(t, err)
	assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
}

func TestRefundRepository_SumSuccessfulRefunds(t *testing.T) {
	db, mock := newMockDB(t)
	rows := sqlmock.NewRows([]string{"coalesce"}).AddRow(150.0)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM "refunds"`).WillReturnRows(rows)

	repo := NewRefundRepository(db)
	total, err := repo.SumSuccessfulRefunds(context.Background(), "payment-key-1")
	require.NoError(t, err)
	assert.Equal(t, 150.0, total)
}

func TestRefundRepository_Insert_DuplicateIsIntegrityKind(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "refunds"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	repo := NewRefundRepository(db)
	err := repo.Insert(context.Background(), nil, &models.Refund{
		RefundIdempotencyKey: "refund-1", PaymentIdempotencyKey: "payment-1",
		Status: models.RefundSuccess, Amount: 10, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
}

func TestAlertRepository_Recent(t *testing.T) {
	db, mock := newMockDB(t)
	rows := sqlmock.NewRows([]string{"alert_id", "risk_score"}).AddRow("alert-1", 0.9)
	mock.ExpectQuery(`SELECT \* FROM "risk_alerts"`).WillReturnRows(rows)

	repo := NewAlertRepository(db)
	alerts, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "alert-1", alerts[0].AlertID)
}
