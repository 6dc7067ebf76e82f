package adapters

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthStatus mirrors the teacher's architecture.HealthStatus shape,
// generalized from a single mediator field to the adapter Registry (§5
// supplement — per-adapter health-check prober).
type HealthStatus struct {
	AdapterName  string
	Healthy      bool
	LastCheck    time.Time
	ResponseTime time.Duration
}

// Prober periodically samples IsHealthy() on every registered adapter and
// records the latest result per adapter. Routing does not read this record:
// Registry.HealthyOfType still calls IsHealthy() live on each selection.
type Prober struct {
	registry *Registry
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	status map[string]HealthStatus
}

func NewProber(registry *Registry, interval time.Duration, logger *zap.Logger) *Prober {
	return &Prober{
		registry: registry,
		interval: interval,
		logger:   logger,
		status:   make(map[string]HealthStatus),
	}
}

// Run blocks, probing on a ticker until ctx is cancelled; cmd/api starts it
// in its own goroutine.
func (p *Prober) Run(ctx context.Context) {
	p.probeAll()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll()
		}
	}
}

func (p *Prober) probeAll() {
	for _, a := range p.registry.All() {
		start := time.Now()
		healthy := a.IsHealthy()
		elapsed := time.Since(start)

		p.mu.Lock()
		p.status[a.AdapterName()] = HealthStatus{
			AdapterName:  a.AdapterName(),
			Healthy:      healthy,
			LastCheck:    start,
			ResponseTime: elapsed,
		}
		p.mu.Unlock()

		if !healthy {
			p.logger.Warn("adapter health probe failed", zap.String("adapter", a.AdapterName()))
		}
	}
}

// Status returns the last-sampled health of a single adapter.
func (p *Prober) Status(adapterName string) (HealthStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.status[adapterName]
	return s, ok
}

// All returns the last-sampled health of every registered adapter.
func (p *Prober) All() []HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]HealthStatus, 0, len(p.status))
	for _, s := range p.status {
		out = append(out, s)
	}
	return out
}
