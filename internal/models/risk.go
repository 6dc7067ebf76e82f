package models

import (
	"time"

	"gorm.io/datatypes"
)

// EntityType is one of the four axes the window aggregator partitions by
// (§4.9, GLOSSARY).
type EntityType string

const (
	EntityMerchant EntityType = "MERCHANT"
	EntityCard     EntityType = "CARD"
	EntityEmail    EntityType = "EMAIL"
	EntityIP       EntityType = "IP"
)

// AmountTrend is the sign of the linear-regression slope of amount vs index
// over a window (§4.9).
type AmountTrend int

const (
	TrendFlat AmountTrend = 0
	TrendUp   AmountTrend = 1
	TrendDown AmountTrend = -1
)

// WindowFeatures is the per-entity, per-evaluation feature vector computed
// by the aggregator and consumed by the scoring engine (§3, §4.9).
type WindowFeatures struct {
	EntityID   string
	EntityType EntityType

	WindowStart time.Time
	WindowEnd   time.Time

	TotalCount   int
	FailureCount int
	FailureRate  float64

	CountLast1Min int
	CountLast5Min int

	AvgAmount      float64
	MinAmount      float64
	MaxAmount      float64
	AmountVariance float64
	AmountTrend    AmountTrend

	IncreasingAmountCount int
	DecreasingAmountCount int

	AvgTimeGapSeconds           float64
	SecondsSinceLastTransaction float64

	HourOfDay int
	DayOfWeek int

	// CurrentAmount is the amount on the event that triggered this
	// evaluation; carried alongside the window so rule predicates that
	// compare "this transaction" against the window baseline (e.g.
	// UNUSUAL_AMOUNT) don't need a second lookup.
	CurrentAmount float64
}

// RiskLevel is the severity bucket derived from a risk score (§3, §4.10).
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// SignalType is an atomic boolean predicate fired on a window's features
// (§4.10 signal taxonomy).
type SignalType string

const (
	SignalHighFailureRate      SignalType = "HIGH_FAILURE_RATE"
	SignalHighEmailFailureRate SignalType = "HIGH_EMAIL_FAILURE_RATE"
	SignalHighIPFailureRate    SignalType = "HIGH_IP_FAILURE_RATE"
	SignalRepeatedFailures     SignalType = "REPEATED_FAILURES"
	SignalHighVelocity         SignalType = "HIGH_VELOCITY"
	SignalHighEmailVelocity    SignalType = "HIGH_EMAIL_VELOCITY"
	SignalHighIPVelocity       SignalType = "HIGH_IP_VELOCITY"
	SignalUnusualAmount        SignalType = "UNUSUAL_AMOUNT"
	SignalComplianceAnomaly    SignalType = "COMPLIANCE_ANOMALY"
	SignalSystemicRisk         SignalType = "SYSTEMIC_RISK" // reserved, never emitted by rules
)

// RiskAlert is the append-only artifact published when a non-empty signal
// set exceeds the alert-score threshold (§3, §4.10).
type RiskAlert struct {
	AlertID             string
	Timestamp           time.Time
	Level               RiskLevel
	SignalTypes         []SignalType
	RiskScore           float64
	EntityID            string
	EntityType          EntityType
	RelatedEventIDs     []string
	Amount              float64
	CurrencyCode        string
	Summary             string
	DetailedExplanation string
}

// AlertStatus is the operational lifecycle state of an alert, tracked
// outside the core (§3 — persistence of initial NEW only).
type AlertStatus string

const (
	AlertStatusNew            AlertStatus = "NEW"
	AlertStatusAck            AlertStatus = "ACK"
	AlertStatusInvestigating  AlertStatus = "INVESTIGATING"
	AlertStatusResolved       AlertStatus = "RESOLVED"
	AlertStatusFalsePositive  AlertStatus = "FALSE_POSITIVE"
	AlertStatusEscalated      AlertStatus = "ESCALATED"
)

// PersistedAlert is the durable row for a RiskAlert (§6 risk_alerts).
type PersistedAlert struct {
	AlertID             string `gorm:"primaryKey;column:alert_id"`
	EntityID            string `gorm:"column:entity_id;index"`
	EntityType          EntityType `gorm:"column:entity_type"`
	RiskLevel           RiskLevel  `gorm:"column:risk_level"`
	RiskScore           float64    `gorm:"column:risk_score"`
	Amount              float64
	CurrencyCode        string `gorm:"column:currency_code"`
	Summary             string
	DetailedExplanation string `gorm:"column:detailed_explanation"`
	Status              AlertStatus `gorm:"column:status"`
	SignalTypes         datatypes.JSONSlice[string] `gorm:"column:signal_types;type:jsonb"`
	RelatedEventIDs     datatypes.JSONSlice[string] `gorm:"column:related_event_ids;type:jsonb"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
	ResolvedAt          *time.Time `gorm:"column:resolved_at"`
}

func (PersistedAlert) TableName() string { return "risk_alerts" }

// ToPersisted converts a RiskAlert to its durable row, NEW status, per §3.
func (a *RiskAlert) ToPersisted() *PersistedAlert {
	signals := make([]string, len(a.SignalTypes))
	for i, s := range a.SignalTypes {
		signals[i] = string(s)
	}
	return &PersistedAlert{
		AlertID:             a.AlertID,
		EntityID:            a.EntityID,
		EntityType:          a.EntityType,
		RiskLevel:           a.Level,
		RiskScore:           a.RiskScore,
		Amount:              a.Amount,
		CurrencyCode:        a.CurrencyCode,
		Summary:             a.Summary,
		DetailedExplanation: a.DetailedExplanation,
		Status:              AlertStatusNew,
		SignalTypes:         signals,
		RelatedEventIDs:     a.RelatedEventIDs,
		CreatedAt:           a.Timestamp,
		UpdatedAt:           a.Timestamp,
	}
}

// WebhookSubscription registers a per-entity alert webhook (§6).
type WebhookSubscription struct {
	EntityID   string `gorm:"column:entity_id;index:idx_webhook_entity,priority:1"`
	WebhookURL string `gorm:"column:webhook_url;index:idx_webhook_entity,priority:2"`
	CreatedAt  time.Time
}

func (WebhookSubscription) TableName() string { return "webhook_subscriptions" }

// WebhookDeadLetter records a permanently-failed webhook delivery (§5
// supplement — logged, never surfaced, but not silently dropped either).
type WebhookDeadLetter struct {
	ID         uint `gorm:"primaryKey"`
	AlertID    string
	WebhookURL string
	Error      string
	Attempts   int
	CreatedAt  time.Time
}

func (WebhookDeadLetter) TableName() string { return "webhook_dead_letters" }
