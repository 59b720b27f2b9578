package fraud

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AuraquanTech/paytrust/internal/idgen"
	"github.com/AuraquanTech/paytrust/internal/logging"
	"github.com/AuraquanTech/paytrust/internal/retry"
	"github.com/AuraquanTech/paytrust/internal/traces"
)

// Round-amount heuristic bounds. Whole-hundred-dollar charges at or
// above $500 correlate with stolen-card cashouts.
const (
	roundAmountFloorCents = 50_000
	roundAmountStepCents  = 10_000
)

// Engine scores checkout attempts against the configured policy.
type Engine struct {
	windows WindowStore
	audit   AuditStore
	emails  *EmailAnalyzer
	policy  Policy
	now     func() time.Time
}

// NewEngine creates a scoring engine. audit may be nil to skip the
// assessment trail (tests, dry runs).
func NewEngine(windows WindowStore, audit AuditStore, emails *EmailAnalyzer, policy Policy) *Engine {
	return &Engine{
		windows: windows,
		audit:   audit,
		emails:  emails,
		policy:  policy,
		now:     time.Now,
	}
}

// Policy returns the engine's active policy.
func (e *Engine) Policy() Policy { return e.policy }

// Score evaluates one checkout attempt and returns an assessment.
//
// The attempt is recorded into the customer's sliding windows before the
// counts are read, so the velocity and spending signals include the
// attempt itself: a customer's fourth payment in a minute trips a limit
// of three. Recording happens whatever the verdict turns out to be; a
// blocked attempt is still evidence of probing.
func (e *Engine) Score(ctx context.Context, tx *Transaction) *Assessment {
	ctx, span := traces.StartSpan(ctx, "fraud.score")
	defer span.End()

	signals := make(map[string]float64)
	var reasons []string
	degraded := false
	identity := tx.Identity()

	// Reasons are appended in fixed evaluation order: velocity, amount,
	// spending, email, round amount.
	obs, obsErr := e.windows.RecordAndObserve(ctx, identity, tx.AmountCents, e.now())
	if obsErr != nil {
		// Without window state the velocity and spending signals are
		// blind. Fail closed: the attempt cannot auto-approve.
		degraded = true
		windowStoreFailures.Inc()
		logging.L(ctx).Error("window store unavailable, degrading to manual review",
			"customer", identity,
			"error", obsErr,
		)
		reasons = append(reasons, "velocity and spending history unavailable")
	} else {
		if obs.MinuteCount > e.policy.VelocityLimitPerMinute {
			signals[SignalVelocityMinute] = e.policy.WeightVelocityMinute
			reasons = append(reasons, fmt.Sprintf("%d payments in the last minute exceeds limit of %d",
				obs.MinuteCount, e.policy.VelocityLimitPerMinute))
		}
		if obs.HourCount > e.policy.VelocityLimitPerHour {
			signals[SignalVelocityHour] = e.policy.WeightVelocityHour
			reasons = append(reasons, fmt.Sprintf("%d payments in the last hour exceeds limit of %d",
				obs.HourCount, e.policy.VelocityLimitPerHour))
		}
	}

	if tx.AmountCents > 0 && tx.AmountCents < e.policy.MicroAmountCents {
		signals[SignalMicroAmount] = e.policy.WeightMicroAmount
		reasons = append(reasons, fmt.Sprintf("micro amount of %d cents looks like card testing", tx.AmountCents))
	}
	if tx.AmountCents > e.policy.LargeAmountCents {
		signals[SignalLargeAmount] = e.policy.WeightLargeAmount
		reasons = append(reasons, fmt.Sprintf("amount of %d cents is unusually large", tx.AmountCents))
	}

	if obsErr == nil && obs.HourSumCents > e.policy.SpendingLimitCents {
		signals[SignalSpendingLimit] = e.policy.WeightSpendingLimit
		reasons = append(reasons, fmt.Sprintf("hourly spend of %d cents exceeds limit of %d",
			obs.HourSumCents, e.policy.SpendingLimitCents))
	}

	if e.emails != nil && tx.Email != "" {
		if e.emails.IsDisposable(tx.Email) {
			signals[SignalDisposableEmail] = e.policy.WeightDisposable
			reasons = append(reasons, "disposable email domain")
		}
		if e.emails.LooksGenerated(tx.Email) {
			signals[SignalEmailPattern] = e.policy.WeightEmailPattern
			reasons = append(reasons, "email address looks auto-generated")
		}
	}

	if tx.AmountCents >= roundAmountFloorCents && tx.AmountCents%roundAmountStepCents == 0 {
		signals[SignalRoundAmount] = e.policy.WeightRoundAmount
		reasons = append(reasons, "suspiciously round amount")
	}

	var score float64
	for name, weight := range signals {
		score += weight
		signalTriggered.WithLabelValues(name).Inc()
	}
	if score > 1.0 {
		score = 1.0
	}

	recommendation := RecommendApprove
	switch {
	case score >= e.policy.ThresholdHigh:
		recommendation = RecommendBlock
	case score >= e.policy.ThresholdLow:
		recommendation = RecommendReview
	}
	if degraded && recommendation == RecommendApprove {
		recommendation = RecommendReview
	}

	assessment := &Assessment{
		ID:             idgen.WithPrefix("asmt_"),
		Customer:       identity,
		AmountCents:    tx.AmountCents,
		Score:          math.Round(score*1000) / 1000,
		Recommendation: recommendation,
		Signals:        signals,
		Reasons:        reasons,
		Degraded:       degraded,
		EvaluatedAt:    e.now(),
	}

	assessmentsTotal.WithLabelValues(string(recommendation)).Inc()
	scoreDistribution.Observe(assessment.Score)
	span.SetAttributes(
		traces.Customer(identity),
		traces.AmountCents(tx.AmountCents),
		traces.Score(assessment.Score),
		traces.Recommendation(string(recommendation)),
	)

	// Best-effort audit trail; scoring latency must not wait on it.
	if e.audit != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := retry.Do(ctx, 3, 200*time.Millisecond, func() error {
				return e.audit.Record(ctx, assessment)
			})
			if err != nil {
				logging.L(ctx).Error("failed to record assessment",
					"assessment_id", assessment.ID,
					"error", err,
				)
			}
		}()
	}

	return assessment
}

// Reset clears the customer's window history. Used by support after a
// verified false positive.
func (e *Engine) Reset(ctx context.Context, customer string) error {
	return e.windows.ResetCustomer(ctx, customer)
}

// TrackedCustomers reports how many customers currently have window state.
func (e *Engine) TrackedCustomers(ctx context.Context) (int, error) {
	return e.windows.TrackedCustomers(ctx)
}
