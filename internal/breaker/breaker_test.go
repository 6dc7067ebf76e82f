package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
)

func testConfig() Config {
	return Config{
		WindowSize:        4,
		FailureRateThresh: 0.5,
		MinCalls:          4,
		OpenDuration:      50 * time.Millisecond,
		HalfOpenSuccesses: 1,
		RetryMaxAttempts:  2,
		RetryWaitDuration: time.Millisecond,
	}
}

func TestBreaker_OpensOnFailureRate(t *testing.T) {
	b := New("adapter-1", testConfig(), zap.NewNop())

	failing := func(ctx context.Context) error {
		return apperr.New(apperr.KindPermanent, "DECLINED", "declined", nil)
	}
	for i := 0; i < 4; i++ {
		_ = b.Call(context.Background(), failing)
	}

	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenRejectsWithoutCallingFn(t *testing.T) {
	b := New("adapter-2", testConfig(), zap.NewNop())
	for i := 0; i < 4; i++ {
		_ = b.Call(context.Background(), func(ctx context.Context) error {
			return apperr.New(apperr.KindPermanent, "DECLINED", "declined", nil)
		})
	}
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Call(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, apperr.IsCallNotPermitted(err))
}

func TestBreaker_HalfOpenClosesOnSuccess(t *testing.T) {
	cfg := testConfig()
	b := New("adapter-3", cfg, zap.NewNop())
	for i := 0; i < 4; i++ {
		_ = b.Call(context.Background(), func(ctx context.Context) error {
			return apperr.New(apperr.KindPermanent, "DECLINED", "declined", nil)
		})
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(cfg.OpenDuration + 10*time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_RetriesTransientNotPermanent(t *testing.T) {
	cfg := testConfig()
	cfg.RetryMaxAttempts = 3
	b := New("adapter-4", cfg, zap.NewNop())

	attempts := 0
	err := b.Call(context.Background(), func(ctx context.Context) error {
		attempts++
		return apperr.New(apperr.KindTransient, "TIMEOUT", "timeout", nil)
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBreaker_PermanentFailureNeverRetries(t *testing.T) {
	b := New("adapter-5", testConfig(), zap.NewNop())
	attempts := 0
	err := b.Call(context.Background(), func(ctx context.Context) error {
		attempts++
		return apperr.New(apperr.KindPermanent, "DECLINED", "declined", nil)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRegistry_GetReturnsSameInstancePerAdapter(t *testing.T) {
	r := NewRegistry(DefaultConfig(), zap.NewNop())
	b1 := r.Get("stripe-primary")
	b2 := r.Get("stripe-primary")
	b3 := r.Get("wallet-primary")

	assert.Same(t, b1, b2)
	assert.NotSame(t, b1, b3)
}

func TestBreaker_PlainErrorTreatedAsTransientAndRetried(t *testing.T) {
	cfg := testConfig()
	cfg.RetryMaxAttempts = 2
	b := New("adapter-6", cfg, zap.NewNop())

	attempts := 0
	err := b.Call(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("unclassified")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}
