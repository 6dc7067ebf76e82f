// Package routing implements the pluggable provider-selection strategies
// from §4.5. Each strategy is pure with respect to (request, healthy
// adapter candidates, metrics view) except for small strategy-local state
// (e.g. the WeightedRoundRobin cursor), and returns exactly one selected
// adapter name or none.
package routing

import (
	"math"

	"github.com/lexure-intelligence/payment-watchdog/internal/metrics"
	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

// Candidate is one selectable adapter: its provider type-scoped identity
// (adapterName) plus the metrics snapshot the strategies score against.
type Candidate struct {
	AdapterName string
	Metrics     metrics.Snapshot
}

// Strategy selects one candidate from the input order, or none.
type Strategy interface {
	Select(req *models.PaymentRequest, candidates []Candidate) (string, bool)
}

const epsilon = 0.0001

// WeightedRoundRobin: weight = max(1, round(successRate*100)); pick by
// cumulative weight over a cursor keyed by the candidate set's identity.
type WeightedRoundRobin struct {
	cursor map[string]int
}

func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{cursor: make(map[string]int)}
}

func (w *WeightedRoundRobin) Select(req *models.PaymentRequest, candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	weights := make([]int, len(candidates))
	total := 0
	for i, c := range candidates {
		weight := int(math.Round(c.Metrics.SuccessRate * 100))
		if weight < 1 {
			weight = 1
		}
		weights[i] = weight
		total += weight
	}

	key := setKey(candidates)
	pos := w.cursor[key] % total
	w.cursor[key] = (w.cursor[key] + 1) % total

	cum := 0
	for i, weight := range weights {
		cum += weight
		if pos < cum {
			return candidates[i].AdapterName, true
		}
	}
	return candidates[len(candidates)-1].AdapterName, true
}

func setKey(candidates []Candidate) string {
	key := ""
	for _, c := range candidates {
		key += c.AdapterName + "|"
	}
	return key
}

// LeastConnections: argmin(activeConnections).
type LeastConnections struct{}

func (LeastConnections) Select(req *models.PaymentRequest, candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Metrics.Concurrency < best.Metrics.Concurrency {
			best = c
		}
	}
	return best.AdapterName, true
}

// CostBased: argmin(avgCost / max(successRate, epsilon)).
type CostBased struct{}

func (CostBased) Select(req *models.PaymentRequest, candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := candidates[0]
	bestScore := costScore(best)
	for _, c := range candidates[1:] {
		if s := costScore(c); s < bestScore {
			best, bestScore = c, s
		}
	}
	return best.AdapterName, true
}

func costScore(c Candidate) float64 {
	successRate := c.Metrics.SuccessRate
	if successRate < epsilon {
		successRate = epsilon
	}
	return c.Metrics.AvgCostCents / successRate
}

// ResponseTimeBased: argmin(avgLatency).
type ResponseTimeBased struct{}

func (ResponseTimeBased) Select(req *models.PaymentRequest, candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Metrics.AvgLatencyMs < best.Metrics.AvgLatencyMs {
			best = c
		}
	}
	return best.AdapterName, true
}

// Hybrid: argmax(0.40*successRate + 0.30*(1-latency/5000ms) +
// 0.20*(1-cost/$1) + 0.10*(1-conn/100)), each term clamped to [0,1].
type Hybrid struct{}

func (Hybrid) Select(req *models.PaymentRequest, candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := candidates[0]
	bestScore := hybridScore(best)
	for _, c := range candidates[1:] {
		if s := hybridScore(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best.AdapterName, true
}

func hybridScore(c Candidate) float64 {
	successTerm := clamp01(c.Metrics.SuccessRate)
	latencyTerm := clamp01(1 - c.Metrics.AvgLatencyMs/5000)
	costTerm := clamp01(1 - (c.Metrics.AvgCostCents/100)/1)
	connTerm := clamp01(1 - float64(c.Metrics.Concurrency)/100)
	return 0.40*successTerm + 0.30*latencyTerm + 0.20*costTerm + 0.10*connTerm
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ByName resolves a configured strategy name (§6 routing.strategy) to an
// instance. Unknown names fall back to WeightedRoundRobin.
func ByName(name string) Strategy {
	switch name {
	case "LeastConnections":
		return LeastConnections{}
	case "CostBased":
		return CostBased{}
	case "ResponseTimeBased":
		return ResponseTimeBased{}
	case "Hybrid":
		return Hybrid{}
	default:
		return NewWeightedRoundRobin()
	}
}
