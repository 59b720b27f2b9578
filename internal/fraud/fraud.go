// Package fraud implements weighted risk scoring for checkout attempts.
//
// Every attempt is evaluated against sliding-window velocity and spending
// signals plus stateless amount and email heuristics. Scores range from
// 0.0 (safe) to 1.0 (high risk) and map onto three recommendations:
// approve below the low threshold, review between the thresholds, and
// block at or above the high threshold.
package fraud

import (
	"context"
	"time"

	"github.com/AuraquanTech/paytrust/internal/validation"
)

// Recommendation is the scoring verdict for a checkout attempt.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReview  Recommendation = "review"
	RecommendBlock   Recommendation = "block"
)

// Signal names, used as map keys in assessments and as metric labels.
const (
	SignalVelocityMinute  = "velocity_minute"
	SignalVelocityHour    = "velocity_hour"
	SignalMicroAmount     = "micro_amount"
	SignalLargeAmount     = "large_amount"
	SignalSpendingLimit   = "spending_limit"
	SignalDisposableEmail = "disposable_email"
	SignalEmailPattern    = "suspicious_email_pattern"
	SignalRoundAmount     = "round_amount"
)

// Transaction carries the data needed to score one checkout attempt.
// Amounts are integer minor units (cents); no floats touch money.
type Transaction struct {
	Email       string
	IP          string
	AmountCents int64
}

// Identity returns the window partition key for this attempt.
func (t *Transaction) Identity() string {
	return CustomerIdentity(t.Email, t.IP)
}

// CustomerIdentity derives the stable key that velocity and spending
// windows are tracked under: the case-normalized email, or the client
// IP when no email was supplied. Casing and whitespace variations of
// the same mailbox share one window.
func CustomerIdentity(email, ip string) string {
	if normalized := validation.NormalizeEmail(email); normalized != "" {
		return normalized
	}
	if ip != "" {
		return ip
	}
	return "unknown"
}

// Assessment is the result of scoring a single attempt.
type Assessment struct {
	ID             string             `json:"id"`
	Customer       string             `json:"customer"`
	AmountCents    int64              `json:"amountCents"`
	Score          float64            `json:"score"`
	Recommendation Recommendation     `json:"recommendation"`
	Signals        map[string]float64 `json:"signals"`
	Reasons        []string           `json:"reasons"`
	Degraded       bool               `json:"degraded,omitempty"`
	EvaluatedAt    time.Time          `json:"evaluatedAt"`
}

// Observation is the customer's window state after the current attempt
// has been appended. Counts and sums therefore include the attempt
// being scored.
type Observation struct {
	MinuteCount  int
	HourCount    int
	HourSumCents int64
}

// WindowStore tracks per-customer attempt history over sliding windows.
//
// RecordAndObserve must be atomic per customer: the append and the
// counts happen under one lock so concurrent attempts for the same
// customer each see the other's contribution.
type WindowStore interface {
	RecordAndObserve(ctx context.Context, customer string, amountCents int64, at time.Time) (Observation, error)
	ResetCustomer(ctx context.Context, customer string) error
	TrackedCustomers(ctx context.Context) (int, error)
}

// AuditStore persists assessments for the review trail.
type AuditStore interface {
	Record(ctx context.Context, assessment *Assessment) error
	ListByCustomer(ctx context.Context, customer string, limit int) ([]*Assessment, error)
}

// Policy holds the limits, weights, and thresholds the engine scores with.
type Policy struct {
	VelocityLimitPerMinute int
	VelocityLimitPerHour   int
	SpendingLimitCents     int64
	MicroAmountCents       int64
	LargeAmountCents       int64

	WeightVelocityMinute float64
	WeightVelocityHour   float64
	WeightMicroAmount    float64
	WeightLargeAmount    float64
	WeightSpendingLimit  float64
	WeightDisposable     float64
	WeightEmailPattern   float64
	WeightRoundAmount    float64

	ThresholdLow  float64
	ThresholdHigh float64
}

// DefaultPolicy returns the documented production policy.
func DefaultPolicy() Policy {
	return Policy{
		VelocityLimitPerMinute: 3,
		VelocityLimitPerHour:   10,
		SpendingLimitCents:     100_000,
		MicroAmountCents:       100,
		LargeAmountCents:       1_000_000,

		WeightVelocityMinute: 0.5,
		WeightVelocityHour:   0.3,
		WeightMicroAmount:    0.6,
		WeightLargeAmount:    0.3,
		WeightSpendingLimit:  0.4,
		WeightDisposable:     0.5,
		WeightEmailPattern:   0.2,
		WeightRoundAmount:    0.2,

		ThresholdLow:  0.4,
		ThresholdHigh: 0.7,
	}
}
