// Package idempotency implements the two-tier idempotency store from §4.2:
// a low-latency hot cache (Redis, TTL-bounded) in front of a durable tier
// (gorm-backed repository), with fail-open reads on either tier. It is
// grounded on the teacher's webhook dedup idiom (Redis SetNX with a TTL,
// webhook_service.go) generalized from a boolean "seen" flag to a full
// cached result, and reused — via Go generics over the pointer-receiver
// WellFormed() method both PaymentResult and RefundResult implement — for
// both the payment and refund idempotency namespaces (§4.7 step 1).
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// wellFormed is satisfied by *models.PaymentResult and *models.RefundResult.
type wellFormed interface {
	WellFormed() bool
}

// DurableLookup resolves a key against the durable tier (gorm repository).
type DurableLookup[T any] func(ctx context.Context, key string) (*T, error)

// DurablePersist writes a record to the durable tier. Implementations must
// be idempotent: a concurrent duplicate insert is expected (I1) and must be
// swallowed as apperr.KindIntegrity, not surfaced.
type DurablePersist[T any] func(ctx context.Context, key string, value *T) error

// Store is a two-tier idempotency store over record type T, whose pointer
// type PT must implement WellFormed(). keyPrefix namespaces the hot cache
// so payment and refund keys never collide in the same Redis keyspace.
type Store[T any, PT interface {
	*T
	wellFormed
}] struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
	lookup      DurableLookup[T]
	persist     DurablePersist[T]
	logger      *zap.Logger
}

func NewStore[T any, PT interface {
	*T
	wellFormed
}](redisClient *redis.Client, keyPrefix string, ttl time.Duration, lookup DurableLookup[T], persist DurablePersist[T], logger *zap.Logger) *Store[T, PT] {
	return &Store[T, PT]{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
		lookup:      lookup,
		persist:     persist,
		logger:      logger,
	}
}

func (s *Store[T, PT]) cacheKey(key string) string {
	return s.keyPrefix + ":" + key
}

// GetCached returns a prior result if either tier has one. A durable-tier
// hit repopulates the hot tier best-effort. Corrupted or malformed entries
// and tier read failures are both logged and treated as miss (§4.2).
func (s *Store[T, PT]) GetCached(ctx context.Context, key string) (*T, bool) {
	if s.redisClient != nil {
		raw, err := s.redisClient.Get(ctx, s.cacheKey(key)).Bytes()
		switch {
		case err == nil:
			var v T
			if uerr := json.Unmarshal(raw, &v); uerr != nil {
				s.logger.Warn("idempotency: corrupted hot-cache entry, treating as miss",
					zap.String("key", key), zap.Error(uerr))
			} else if PT(&v).WellFormed() {
				return &v, true
			} else {
				s.logger.Warn("idempotency: malformed hot-cache entry, treating as miss", zap.String("key", key))
			}
		case errors.Is(err, redis.Nil):
			// cache miss, fall through to durable tier
		default:
			s.logger.Warn("idempotency: hot cache read failed, treating as miss",
				zap.String("key", key), zap.Error(err))
		}
	}

	if s.lookup == nil {
		return nil, false
	}
	v, err := s.lookup(ctx, key)
	if err != nil {
		s.logger.Warn("idempotency: durable lookup failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if v == nil || !PT(v).WellFormed() {
		return nil, false
	}

	s.repopulateHotCache(ctx, key, v)
	return v, true
}

func (s *Store[T, PT]) repopulateHotCache(ctx context.Context, key string, v *T) {
	if s.redisClient == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("idempotency: failed to serialize for hot-cache repopulation", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.redisClient.Set(ctx, s.cacheKey(key), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("idempotency: hot cache repopulation failed", zap.String("key", key), zap.Error(err))
	}
}

// Store persists v to the durable tier and best-effort to the hot cache.
// Durable persist failures are logged, never surfaced — the hot cache still
// protects I1 within its TTL, and the next durable write attempt for the
// same key reconciles.
func (s *Store[T, PT]) Store(ctx context.Context, key string, v *T) {
	if s.persist != nil {
		if err := s.persist(ctx, key, v); err != nil {
			s.logger.Warn("idempotency: durable store failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.repopulateHotCache(ctx, key, v)
}
