package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

func wellFormedResult(key string) *models.RefundResult {
	return &models.RefundResult{
		IdempotencyKey: key,
		Status:         models.RefundSuccess,
		Timestamp:      time.Now(),
	}
}

func TestStore_GetCached_DurableMiss(t *testing.T) {
	lookupCalled := false
	store := NewStore[models.RefundResult, *models.RefundResult](nil, "refund", time.Minute,
		func(ctx context.Context, key string) (*models.RefundResult, error) {
			lookupCalled = true
			return nil, nil
		}, nil, zap.NewNop())

	_, ok := store.GetCached(context.Background(), "missing-key")
	assert.False(t, ok)
	assert.True(t, lookupCalled)
}

func TestStore_GetCached_DurableHit(t *testing.T) {
	expected := wellFormedResult("key-1")
	store := NewStore[models.RefundResult, *models.RefundResult](nil, "refund", time.Minute,
		func(ctx context.Context, key string) (*models.RefundResult, error) {
			if key == "key-1" {
				return expected, nil
			}
			return nil, nil
		}, nil, zap.NewNop())

	got, ok := store.GetCached(context.Background(), "key-1")
	require.True(t, ok)
	assert.Equal(t, expected.IdempotencyKey, got.IdempotencyKey)
}

func TestStore_GetCached_MalformedDurableRecordTreatedAsMiss(t *testing.T) {
	malformed := &models.RefundResult{} // no IdempotencyKey/Status/Timestamp
	store := NewStore[models.RefundResult, *models.RefundResult](nil, "refund", time.Minute,
		func(ctx context.Context, key string) (*models.RefundResult, error) {
			return malformed, nil
		}, nil, zap.NewNop())

	_, ok := store.GetCached(context.Background(), "any")
	assert.False(t, ok)
}

func TestStore_GetCached_DurableErrorTreatedAsMiss(t *testing.T) {
	store := NewStore[models.RefundResult, *models.RefundResult](nil, "refund", time.Minute,
		func(ctx context.Context, key string) (*models.RefundResult, error) {
			return nil, errors.New("db unavailable")
		}, nil, zap.NewNop())

	_, ok := store.GetCached(context.Background(), "any")
	assert.False(t, ok)
}

func TestStore_Store_NilPersistDoesNotPanic(t *testing.T) {
	store := NewStore[models.RefundResult, *models.RefundResult](nil, "refund", time.Minute, nil, nil, zap.NewNop())
	assert.NotPanics(t, func() {
		store.Store(context.Background(), "key-1", wellFormedResult("key-1"))
	})
}

func TestStore_Store_PersistCalledWhenPresent(t *testing.T) {
	var persistedKey string
	store := NewStore[models.RefundResult, *models.RefundResult](nil, "refund", time.Minute, nil,
		func(ctx context.Context, key string, v *models.RefundResult) error {
			persistedKey = key
			return nil
		}, zap.NewNop())

	store.Store(context.Background(), "key-9", wellFormedResult("key-9"))
	assert.Equal(t, "key-9", persistedKey)
}

func TestStore_NoLookupNoRedisIsAlwaysMiss(t *testing.T) {
	store := NewStore[models.RefundResult, *models.RefundResult](nil, "refund", time.Minute, nil, nil, zap.NewNop())
	_, ok := store.GetCached(context.Background(), "any")
	assert.False(t, ok)
}
