// Package adapters normalizes PSP request/response shapes behind a single
// capability set (spec §4.1). Each adapter is a tagged variant over
// {CARD, WALLET, BNPL, BANK_TRANSFER, MOCK} plus a stable, process-unique
// identity string that doubles as the circuit-breaker and metrics
// partition key (§4.6 "Circuit-breaker partitioning").
package adapters

import (
	"context"

	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// Adapter is the capability set every PSP integration exposes (§4.1).
// Implementations must never mutate the request and must populate amount,
// currencyCode, status, timestamp, and idempotencyKey on every return.
type Adapter interface {
	ProviderType() models.ProviderType
	AdapterName() string
	Execute(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error)
	// Refund returns (nil, nil) to declare refunds unsupported.
	Refund(ctx context.Context, req *models.RefundRequest, amount float64, providerTransactionID string) (*models.RefundResult, error)
	IsHealthy() bool
}

// Registry is a process-wide, read-mostly directory of configured adapters,
// initialized at startup (spec §9 "Global state").
type Registry struct {
	byName map[string]Adapter
	byType map[models.ProviderType][]Adapter
	order  []string
}

// NewRegistry builds a Registry from a fixed adapter set. AdapterName()
// must be unique across the set; duplicates would silently shadow a
// breaker/metrics partition, so NewRegistry panics on collision — this is a
// startup-time wiring bug, not a runtime condition.
func NewRegistry(adapterList ...Adapter) *Registry {
	r := &Registry{
		byName: make(map[string]Adapter, len(adapterList)),
		byType: make(map[models.ProviderType][]Adapter),
	}
	for _, a := range adapterList {
		name := a.AdapterName()
		if _, exists := r.byName[name]; exists {
			panic("adapters: duplicate adapter name " + name)
		}
		r.byName[name] = a
		r.byType[a.ProviderType()] = append(r.byType[a.ProviderType()], a)
		r.order = append(r.order, name)
	}
	return r
}

// ByName looks up a single adapter by its stable identity.
func (r *Registry) ByName(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// HealthyOfType returns the adapters of the given provider type that report
// healthy, in registration order.
func (r *Registry) HealthyOfType(pt models.ProviderType) []Adapter {
	all := r.byType[pt]
	out := make([]Adapter, 0, len(all))
	for _, a := range all {
		if a.IsHealthy() {
			out = append(out, a)
		}
	}
	return out
}

// All returns every registered adapter in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
