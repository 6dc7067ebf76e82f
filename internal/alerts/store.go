// Package alerts owns the in-memory ring buffer + durable append alert log
// and the per-entity webhook dispatch fan-out (§3 "append-only in the
// alert log", §6 GET /risk/alerts, POST/DELETE/GET /risk/webhooks).
package alerts

import (
	"context"
	"sync"

	"github.com/lexure-intelligence/payment-watchdog/internal/models"
	"github.com/lexure-intelligence/payment-watchdog/internal/repository"
)

const defaultRingSize = 500

// Store is the append-only alert log: a fast in-memory ring buffer backing
// GET /risk/alerts reads, with every alert also durably appended.
type Store struct {
	repo *repository.AlertRepository

	mu   sync.Mutex
	ring []models.RiskAlert
	head int
	size int
}

func NewStore(repo *repository.AlertRepository) *Store {
	return &Store{repo: repo, ring: make([]models.RiskAlert, defaultRingSize)}
}

// Append records alert in the ring buffer and persists it durably. A
// durable persist failure is returned to the caller; the alert stays in the
// in-memory ring either way, which still serves reads within process
// lifetime.
func (s *Store) Append(ctx context.Context, alert *models.RiskAlert) error {
	s.mu.Lock()
	s.ring[s.head] = *alert
	s.head = (s.head + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}
	s.mu.Unlock()

	return s.repo.Insert(ctx, alert.ToPersisted())
}

// Recent returns the last n alerts in reverse chronological order, served
// from the in-memory ring when it holds enough history, falling back to
// the durable tier otherwise.
func (s *Store) Recent(ctx context.Context, n int) ([]models.RiskAlert, error) {
	s.mu.Lock()
	if s.size >= n || s.size == len(s.ring) {
		out := make([]models.RiskAlert, 0, n)
		idx := (s.head - 1 + len(s.ring)) % len(s.ring)
		for i := 0; i < n && i < s.size; i++ {
			out = append(out, s.ring[idx])
			idx = (idx - 1 + len(s.ring)) % len(s.ring)
		}
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	persisted, err := s.repo.Recent(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]models.RiskAlert, len(persisted))
	for i, p := range persisted {
		out[i] = models.RiskAlert{
			AlertID:             p.AlertID,
			Timestamp:           p.CreatedAt,
			Level:               p.RiskLevel,
			RiskScore:           p.RiskScore,
			EntityID:            p.EntityID,
			EntityType:          p.EntityType,
			Amount:              p.Amount,
			CurrencyCode:        p.CurrencyCode,
			Summary:             p.Summary,
			DetailedExplanation: p.DetailedExplanation,
		}
	}
	return out, nil
}
