// Package breaker implements the per-adapterName circuit breaker and
// bounded-retry wrapper from §4.3. The wrapping order is fixed:
// breaker(retry(adapterCall)) — retry is the inner call, so when the
// breaker is OPEN the retry loop never executes, and repeated retries
// inside a single invocation are absorbed by the breaker as a single
// attempt. Grounded on the teacher's exponential-backoff idiom in
// worker/internal/services/retry_service.go, rebuilt on top of
// cenkalti/backoff/v4 instead of the teacher's hand-rolled delay
// calculation.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lexure-intelligence/payment-watchdog/internal/apperr"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config governs one adapter's breaker and retry behavior (§6 breaker.*,
// retry.*).
type Config struct {
	WindowSize          int           // counting window, default 10
	FailureRateThresh   float64       // default 0.5
	MinCalls            int           // minimum calls before OPEN is considered
	OpenDuration        time.Duration // how long OPEN holds before HALF_OPEN
	HalfOpenSuccesses   int           // successes needed to close from HALF_OPEN
	RetryMaxAttempts    int           // default 3
	RetryWaitDuration   time.Duration // base backoff
}

func DefaultConfig() Config {
	return Config{
		WindowSize:        10,
		FailureRateThresh: 0.5,
		MinCalls:          10,
		OpenDuration:      30 * time.Second,
		HalfOpenSuccesses: 2,
		RetryMaxAttempts:  3,
		RetryWaitDuration: 50 * time.Millisecond,
	}
}

// Breaker is a single adapterName's state machine plus a rolling call
// window used to compute the failure rate.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu             sync.Mutex
	state          State
	window         []bool // true = success, ring buffer of the last WindowSize calls
	openedAt       time.Time
	halfOpenOK     int
}

func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	return &Breaker{name: name, cfg: cfg, logger: logger, state: StateClosed}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}

// currentStateLocked advances OPEN → HALF_OPEN if the open duration has
// elapsed; callers must hold b.mu.
func (b *Breaker) currentStateLocked() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.OpenDuration {
		b.state = StateHalfOpen
		b.halfOpenOK = 0
	}
	return b.state
}

// Allow reports whether a call may proceed. OPEN breakers reject.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked() != StateOpen
}

// recordLocked folds the call outcome into the window and advances the
// state machine, returning the prior/new state so callers can emit a trace
// event exactly on transition (not on every call).
func (b *Breaker) recordLocked(success bool) (from, to State) {
	from = b.currentStateLocked()

	b.window = append(b.window, success)
	if len(b.window) > b.cfg.WindowSize {
		b.window = b.window[len(b.window)-b.cfg.WindowSize:]
	}

	switch from {
	case StateHalfOpen:
		if success {
			b.halfOpenOK++
			if b.halfOpenOK >= b.cfg.HalfOpenSuccesses {
				b.state = StateClosed
				b.window = nil
			}
		} else {
			b.state = StateOpen
			b.openedAt = time.Now()
			b.halfOpenOK = 0
		}
	case StateClosed:
		if len(b.window) >= b.cfg.MinCalls && b.failureRateLocked() >= b.cfg.FailureRateThresh {
			b.state = StateOpen
			b.openedAt = time.Now()
			b.logger.Warn("breaker opened", zap.String("adapter", b.name), zap.Float64("failureRate", b.failureRateLocked()))
		}
	}
	return from, b.state
}

func (b *Breaker) failureRateLocked() float64 {
	if len(b.window) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range b.window {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(b.window))
}

// Call executes fn through the breaker, retrying transient failures inside
// the same invocation per RetryMaxAttempts, and accounting the whole
// invocation as one success/failure in the breaker window. Returns
// apperr.CallNotPermitted without invoking fn if the breaker is OPEN.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return apperr.CallNotPermitted
	}

	err := b.retry(ctx, fn)

	b.mu.Lock()
	from, to := b.recordLocked(err == nil)
	b.mu.Unlock()

	if from != to {
		trace.SpanFromContext(ctx).AddEvent("breaker_state_transition", trace.WithAttributes(
			attribute.String("adapter", b.name),
			attribute.String("from", string(from)),
			attribute.String("to", string(to)),
		))
	}

	return err
}

// retry is the inner wrapper: bounded attempts with fixed small backoff.
// Permanent/validation failures are never retried — retrying a card
// decline wastes the retry budget on an outcome that cannot change.
func (b *Breaker) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(b.cfg.RetryWaitDuration), uint64(b.cfg.RetryMaxAttempts-1)),
		ctx,
	)

	var lastErr error
	op := func() error {
		err := fn(ctx)
		lastErr = err
		if err == nil {
			return nil
		}
		kind := apperr.KindOf(err)
		if kind == apperr.KindPermanent || kind == apperr.KindValidation {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

// Registry lazily creates and holds one Breaker per adapterName (§4.6
// "Circuit-breaker partitioning" — breakers are per adapterName, not per
// providerType).
type Registry struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	byAd map[string]*Breaker
}

func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	return &Registry{cfg: cfg, logger: logger, byAd: make(map[string]*Breaker)}
}

func (r *Registry) Get(adapterName string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byAd[adapterName]
	if !ok {
		b = New(adapterName, r.cfg, r.logger)
		r.byAd[adapterName] = b
	}
	return b
}
