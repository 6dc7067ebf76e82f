// Package aggregator maintains the four independent per-entity sliding
// windows (MERCHANT, CARD, EMAIL, IP) described in §4.9, and derives the
// WindowFeatures the risk scoring engine evaluates. Per-entity state is
// mutated only by its owning consumer worker (§5 concurrency model), but
// the internal map is still guarded since multiple dimensions can touch
// distinct entities concurrently within one process.
package aggregator

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lexure-intelligence/payment-watchdog/internal/models"
)

const windowHorizon = 5 * time.Minute

type tuple struct {
	timestamp time.Time
	amount    float64
	failed    bool
}

type entityWindow struct {
	mu     sync.Mutex
	tuples []tuple
}

// Aggregator holds one entityWindow per (dimension, entityId).
type Aggregator struct {
	mu    sync.RWMutex
	byKey map[string]*entityWindow
}

func New() *Aggregator {
	return &Aggregator{byKey: make(map[string]*entityWindow)}
}

func key(entityType models.EntityType, entityID string) string {
	return string(entityType) + ":" + entityID
}

func (a *Aggregator) window(entityType models.EntityType, entityID string) *entityWindow {
	k := key(entityType, entityID)

	a.mu.RLock()
	w, ok := a.byKey[k]
	a.mu.RUnlock()
	if ok {
		return w
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok = a.byKey[k]; ok {
		return w
	}
	w = &entityWindow{}
	a.byKey[k] = w
	return w
}

// EntityKey identifies one dimension's window for a given event.
type EntityKey struct {
	Type models.EntityType
	ID   string
}

// EntityKeys resolves the (entityType, entityId) pairs an event
// contributes to, per the §4.9 keying rules. A dimension absent on the
// event (no email, no client IP, BNPL cards) yields no pair.
func EntityKeys(event *models.PaymentEvent) []EntityKey {
	var keys []EntityKey
	if event.MerchantReference != "" {
		keys = append(keys, EntityKey{models.EntityMerchant, event.MerchantReference})
	}
	if event.ProviderType != models.ProviderBNPL {
		cardKey := event.CardFingerprint
		if cardKey == "" && event.CardBin != "" && event.CardLast4 != "" {
			cardKey = event.CardBin + event.CardLast4 + string(event.ProviderType)
		}
		if cardKey != "" {
			keys = append(keys, EntityKey{models.EntityCard, cardKey})
		}
	}
	if event.Email != "" {
		keys = append(keys, EntityKey{models.EntityEmail, lowercase(event.Email)})
	}
	if event.ClientIP != "" {
		keys = append(keys, EntityKey{models.EntityIP, event.ClientIP})
	}
	return keys
}

func lowercase(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Record appends (timestamp, amount, failureFlag) to the entity's window
// and evicts tuples older than the 5-minute horizon relative to timestamp.
func (a *Aggregator) Record(entityType models.EntityType, entityID string, timestamp time.Time, amount float64, failed bool) {
	w := a.window(entityType, entityID)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tuples = append(w.tuples, tuple{timestamp: timestamp, amount: amount, failed: failed})
	cutoff := timestamp.Add(-windowHorizon)
	evictBefore := 0
	for evictBefore < len(w.tuples) && w.tuples[evictBefore].timestamp.Before(cutoff) {
		evictBefore++
	}
	if evictBefore > 0 {
		w.tuples = append([]tuple{}, w.tuples[evictBefore:]...)
	}
}

// Features computes current WindowFeatures for an entity, as of asOf
// (ordinarily the timestamp of the event that just triggered evaluation).
func (a *Aggregator) Features(entityType models.EntityType, entityID string, asOf time.Time) models.WindowFeatures {
	w := a.window(entityType, entityID)
	w.mu.Lock()
	tuples := make([]tuple, len(w.tuples))
	copy(tuples, w.tuples)
	w.mu.Unlock()

	sort.Slice(tuples, func(i, j int) bool { return tuples[i].timestamp.Before(tuples[j].timestamp) })

	f := models.WindowFeatures{
		EntityID:    entityID,
		EntityType:  entityType,
		WindowStart: asOf.Add(-windowHorizon),
		WindowEnd:   asOf,
		HourOfDay:   asOf.UTC().Hour(),
		DayOfWeek:   int(asOf.UTC().Weekday()),
	}
	if len(tuples) == 0 {
		return f
	}

	f.CurrentAmount = tuples[len(tuples)-1].amount

	cutoff1 := asOf.Add(-1 * time.Minute)
	var sum, min, max float64
	min = math.MaxFloat64
	failureCount := 0
	for i, t := range tuples {
		if !t.timestamp.Before(cutoff1) {
			f.CountLast1Min++
		}
		f.CountLast5Min++ // every tuple already satisfies the 5-min horizon by construction
		if t.failed {
			failureCount++
		}
		sum += t.amount
		if t.amount < min {
			min = t.amount
		}
		if t.amount > max {
			max = t.amount
		}
		if i > 0 {
			prev := tuples[i-1]
			if t.amount > prev.amount {
				f.IncreasingAmountCount++
			} else if t.amount < prev.amount {
				f.DecreasingAmountCount++
			}
		}
	}

	f.TotalCount = len(tuples)
	f.FailureCount = failureCount
	if f.TotalCount > 0 {
		f.FailureRate = float64(failureCount) / float64(f.TotalCount)
		f.AvgAmount = sum / float64(f.TotalCount)
		f.MinAmount = min
		f.MaxAmount = max
	}
	f.AmountVariance = variance(tuples, f.AvgAmount)
	f.AmountTrend = trend(tuples)

	if len(tuples) >= 2 {
		var gapSum float64
		for i := 1; i < len(tuples); i++ {
			gapSum += tuples[i].timestamp.Sub(tuples[i-1].timestamp).Seconds()
		}
		f.AvgTimeGapSeconds = gapSum / float64(len(tuples)-1)
		f.SecondsSinceLastTransaction = asOf.Sub(tuples[len(tuples)-2].timestamp).Seconds()
	}

	return f
}

func variance(tuples []tuple, mean float64) float64 {
	if len(tuples) == 0 {
		return 0
	}
	var sumSq float64
	for _, t := range tuples {
		d := t.amount - mean
		sumSq += d * d
	}
	return sumSq / float64(len(tuples))
}

// trend returns the sign of the linear-regression slope of amount vs
// index, or TrendFlat if n < 3 (§4.9).
func trend(tuples []tuple) models.AmountTrend {
	n := len(tuples)
	if n < 3 {
		return models.TrendFlat
	}
	var xMean, yMean float64
	for i, t := range tuples {
		xMean += float64(i)
		yMean += t.amount
	}
	xMean /= float64(n)
	yMean /= float64(n)

	var num, den float64
	for i, t := range tuples {
		dx := float64(i) - xMean
		dy := t.amount - yMean
		num += dx * dy
		den += dx * dx
	}
	if den == 0 {
		return models.TrendFlat
	}
	slope := num / den
	switch {
	case slope > 0:
		return models.TrendUp
	case slope < 0:
		return models.TrendDown
	default:
		return models.TrendFlat
	}
}
