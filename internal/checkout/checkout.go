// Package checkout fronts the payment flow with risk scoring. Every
// authorization is scored first; blocked attempts never reach the
// charger, review-band attempts proceed but are queued for a human.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/AuraquanTech/paytrust/internal/fraud"
	"github.com/AuraquanTech/paytrust/internal/logging"
	"github.com/AuraquanTech/paytrust/internal/review"
	"github.com/AuraquanTech/paytrust/internal/traces"
	"github.com/AuraquanTech/paytrust/internal/validation"
)

var (
	ErrInvalidAmount   = errors.New("amount must be a positive number of cents")
	ErrInvalidCustomer = errors.New("an email address or client IP is required")
	ErrInvalidEmail    = errors.New("email address is invalid")

	// ErrChargerUnavailable means the payment provider circuit is open
	// and the attempt was shed without calling out.
	ErrChargerUnavailable = errors.New("payment provider temporarily unavailable")
)

// AuthorizeRequest is one checkout attempt. The customer identity is
// derived from the email (or the client IP when no email is given), not
// supplied by the caller. IP is filled from the connection when the
// request body omits it.
type AuthorizeRequest struct {
	Email       string `json:"email"`
	IP          string `json:"ip"`
	AmountCents int64  `json:"amountCents" binding:"required"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// Validate checks the request before any scoring state is touched.
func (r *AuthorizeRequest) Validate() error {
	if r.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if r.Email == "" && r.IP == "" {
		return ErrInvalidCustomer
	}
	if r.Email != "" && (!validation.IsValidEmail(r.Email) || len(r.Email) > validation.MaxEmailLength) {
		return ErrInvalidEmail
	}
	return nil
}

// Decision is the outcome of an authorization attempt.
type Decision struct {
	Assessment   *fraud.Assessment `json:"assessment"`
	Proceeded    bool              `json:"proceeded"`
	ChargeID     string            `json:"chargeId,omitempty"`
	ReviewItemID string            `json:"reviewItemId,omitempty"`
}

// Charger executes the payment once risk scoring lets it through.
type Charger interface {
	Charge(ctx context.Context, req *AuthorizeRequest) (chargeID string, err error)
}

// Notifier receives decisions for the live feed.
type Notifier interface {
	PublishDecision(a *fraud.Assessment, proceeded bool, chargeID string)
}

// Guard runs the score-then-charge pipeline.
type Guard struct {
	engine   *fraud.Engine
	charger  Charger
	reviews  *review.Queue
	notifier Notifier
}

// NewGuard creates a checkout guard. charger, reviews, and notifier may
// each be nil: without a charger attempts proceed uncharged, without a
// queue review-band attempts are only logged.
func NewGuard(engine *fraud.Engine, charger Charger, reviews *review.Queue, notifier Notifier) *Guard {
	return &Guard{engine: engine, charger: charger, reviews: reviews, notifier: notifier}
}

// RiskCheck scores an attempt without charging. The attempt still counts
// toward the customer's windows; probing the checker is itself activity.
func (g *Guard) RiskCheck(ctx context.Context, req *AuthorizeRequest) (*fraud.Assessment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return g.engine.Score(ctx, &fraud.Transaction{
		Email:       validation.NormalizeEmail(req.Email),
		IP:          req.IP,
		AmountCents: req.AmountCents,
	}), nil
}

// Authorize scores the attempt and, unless it is blocked, charges it.
// Review-band attempts are charged and queued for a human verdict.
func (g *Guard) Authorize(ctx context.Context, req *AuthorizeRequest) (*Decision, error) {
	ctx, span := traces.StartSpan(ctx, "checkout.authorize")
	defer span.End()

	assessment, err := g.RiskCheck(ctx, req)
	if err != nil {
		return nil, err
	}
	decision := &Decision{Assessment: assessment}

	if assessment.Recommendation == fraud.RecommendBlock {
		decisionsTotal.WithLabelValues("blocked").Inc()
		logging.L(ctx).Warn("checkout blocked",
			"customer", assessment.Customer,
			"amount_cents", req.AmountCents,
			"score", assessment.Score,
		)
		g.publish(decision)
		return decision, nil
	}

	if g.charger != nil {
		chargeID, err := g.charger.Charge(ctx, req)
		if err != nil {
			decisionsTotal.WithLabelValues("charge_failed").Inc()
			logging.L(ctx).Error("charge failed",
				"customer", assessment.Customer,
				"amount_cents", req.AmountCents,
				"error", err,
			)
			g.publish(decision)
			return decision, fmt.Errorf("charge: %w", err)
		}
		decision.ChargeID = chargeID
		chargesTotal.Inc()
	}
	decision.Proceeded = true

	if assessment.Recommendation == fraud.RecommendReview {
		decisionsTotal.WithLabelValues("review").Inc()
		if g.reviews != nil {
			item, err := g.reviews.EnqueueAssessment(ctx, assessment, decision.ChargeID)
			if err != nil {
				// The charge already happened; losing the queue entry is an
				// audit gap, not a reason to fail the checkout.
				logging.L(ctx).Error("failed to enqueue review item",
					"assessment_id", assessment.ID,
					"error", err,
				)
			} else {
				decision.ReviewItemID = item.ID
			}
		}
	} else {
		decisionsTotal.WithLabelValues("approved").Inc()
	}

	logging.L(ctx).Info("checkout authorized",
		"customer", assessment.Customer,
		"amount_cents", req.AmountCents,
		"recommendation", string(assessment.Recommendation),
		"charge_id", decision.ChargeID,
	)
	g.publish(decision)
	return decision, nil
}

func (g *Guard) publish(d *Decision) {
	if g.notifier != nil {
		g.notifier.PublishDecision(d.Assessment, d.Proceeded, d.ChargeID)
	}
}
