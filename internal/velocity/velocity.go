// Package velocity samples per-email and per-IP request velocity at
// ingress (§5 "Admission control"). Exceeding a caller-configured cap
// within a rolling 60s window sets PaymentRequest.OverThreshold for
// downstream logging/shedding — it never itself rejects the request.
package velocity

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per key (email or IP), approximating a
// rolling-60s cap with a rate.Limiter refilling at maxPer60s/60s and a
// burst equal to the cap, so a key that has been quiet accumulates up to
// one window's worth of headroom.
type Limiter struct {
	maxPer60s int

	mu       sync.Mutex
	byKey    map[string]*rate.Limiter
}

func NewLimiter(maxPer60s int) *Limiter {
	return &Limiter{maxPer60s: maxPer60s, byKey: make(map[string]*rate.Limiter)}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byKey[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(l.maxPer60s)/60.0), l.maxPer60s)
		l.byKey[key] = b
	}
	return b
}

// Allow reports whether key is still within its cap, consuming one token
// regardless of the outcome (so sustained abuse keeps tripping the flag).
func (l *Limiter) Allow(key string) bool {
	if key == "" || l.maxPer60s <= 0 {
		return true
	}
	return l.bucket(key).Allow()
}

// AdmissionControl samples per-email and per-IP velocity and reports
// whether the request should be flagged overThreshold.
type AdmissionControl struct {
	email *Limiter
	ip    *Limiter
}

func NewAdmissionControl(maxPerEmailPer60s, maxPerIPPer60s int) *AdmissionControl {
	return &AdmissionControl{
		email: NewLimiter(maxPerEmailPer60s),
		ip:    NewLimiter(maxPerIPPer60s),
	}
}

// Check samples email and clientIP, returning true if either cap is
// exceeded.
func (a *AdmissionControl) Check(email, clientIP string) bool {
	emailOK := a.email.Allow(email)
	ipOK := a.ip.Allow(clientIP)
	return !emailOK || !ipOK
}
