// Package repository holds the gorm-backed persistence layer: payment
// transactions, payment events, refunds, risk alerts, and webhook
// subscriptions/dead-letters (§6 persisted-state schema). Grounded on the
// teacher's gorm model conventions (architecture/interfaces.go) and its
// migration runner (worker/internal/database/database.go).
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// TransactionRepository owns payment_transactions, the durable tier of the
// payment idempotency store (§4.2, §9 "exclusive write access").
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) FindByKey(ctx context.Context, key string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Upsert inserts a transaction row, or updates it in place for the same
// key (lifecycle: created on first outcome, updated monotonically toward
// terminal status on later outcomes for the same key, §3 Lifecycles). A
// concurrent insert racing the unique constraint is expected under I1 and
// is swallowed here as apperr.KindIntegrity.
func (r *TransactionRepository) Upsert(ctx context.Context, tx *models.Transaction) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "provider_transaction_id", "failure_code", "failure_message", "adapter_name", "result_payload", "updated_at"}),
	}).Create(tx).Error
	if err != nil {
		return apperr.New(apperr.KindIntegrity, "DUPLICATE_TRANSACTION", "transaction upsert conflict", err)
	}
	return nil
}

// EventRepository owns the durable payment_events table (§4.8, §6).
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends an event, swallowing a duplicate eventId as integrity
// (consumer-side idempotency by eventId, §4.8/I5).
func (r *EventRepository) Insert(ctx context.Context, event *models.PersistedEvent) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event).Error
	if err != nil {
		return apperr.New(apperr.KindIntegrity, "DUPLICATE_EVENT", "event insert conflict", err)
	}
	return nil
}

// RefundRepository owns refunds and enforces the cumulative-bound
// invariant (I2, §4.7 step 5) via a row lock on the parent payment.
type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) FindByKey(ctx context.Context, key string) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).Where("refund_idempotency_key = ?", key).First(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// SumSuccessfulRefunds returns Σ successful refund amounts for a payment.
func (r *RefundRepository) SumSuccessfulRefunds(ctx context.Context, paymentIdempotencyKey string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("payment_idempotency_key = ? AND status = ?", paymentIdempotencyKey, models.RefundSuccess).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

// WithPaymentLock runs fn with a row-level lock held on the payment
// transaction row, serializing the read-sum-then-persist sequence per
// payment key (§4.7 closing paragraph — "a row lock on the payment key, or
// an equivalent compare-and-set, is required").
func (r *RefundRepository) WithPaymentLock(ctx context.Context, paymentIdempotencyKey string, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("idempotency_key = ?", paymentIdempotencyKey).
			First(&locked).Error; err != nil {
			return err
		}
		return fn(tx)
	})
}

func (r *RefundRepository) Insert(ctx context.Context, tx *gorm.DB, refund *models.Refund) error {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "refund_idempotency_key"}},
		DoNothing: true,
	}).Create(refund).Error
	if err != nil {
		return apperr.New(apperr.KindIntegrity, "DUPLICATE_REFUND", "refund insert conflict", err)
	}
	return nil
}

// AlertRepository owns risk_alerts.
type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *models.PersistedAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// Recent returns the last n alerts in reverse chronological order (§6
// GET /risk/alerts?limit=N).
func (r *AlertRepository) Recent(ctx context.Context, limit int) ([]models.PersistedAlert, error) {
	var alerts []models.PersistedAlert
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

// WebhookRepository owns webhook_subscriptions and webhook_dead_letters.
type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Subscribe(ctx context.Context, entityID, webhookURL string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.WebhookSubscription{EntityID: entityID, WebhookURL: webhookURL}).Error
}

func (r *WebhookRepository) Unsubscribe(ctx context.Context, entityID, webhookURL string) error {
	return r.db.WithContext(ctx).
		Where("entity_id = ? AND webhook_url = ?", entityID, webhookURL).
		Delete(&models.WebhookSubscription{}).Error
}

func (r *WebhookRepository) ListByEntity(ctx context.Context, entityID string) ([]models.WebhookSubscription, error) {
	var subs []models.WebhookSubscription
	err := r.db.WithContext(ctx).Where("entity_id = ?", entityID).Find(&subs).Error
	return subs, err
}

// LogDeadLetter records a permanently-failed webhook delivery (§5
// supplement, grounded on the teacher's logToDLQ idiom). Uses a background
// context so the write survives the originating request's cancellation.
func (r *WebhookRepository) LogDeadLetter(alertID, webhookURL string, deliveryErr error, attempts int) {
	entry := &models.WebhookDeadLetter{
		AlertID:    alertID,
		WebhookURL: webhookURL,
		Error:      fmt.Sprintf("%v", deliveryErr),
		Attempts:   attempts,
	}
	_ = r.db.WithContext(context.Background()).Create(entry).Error
}
