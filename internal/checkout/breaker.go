package checkout

import (
	"context"

	"github.com/AuraquanTech/paytrust/internal/circuitbreaker"
	"github.com/AuraquanTech/paytrust/internal/logging"
)

// BreakerCharger wraps a Charger with a circuit breaker so a provider
// outage sheds load fast instead of stacking up timeouts.
type BreakerCharger struct {
	inner    Charger
	breaker  *circuitbreaker.Breaker
	provider string
}

// NewBreakerCharger wraps inner with the given breaker. provider keys
// the circuit and labels its metrics.
func NewBreakerCharger(inner Charger, breaker *circuitbreaker.Breaker, provider string) *BreakerCharger {
	return &BreakerCharger{inner: inner, breaker: breaker, provider: provider}
}

func (b *BreakerCharger) Charge(ctx context.Context, req *AuthorizeRequest) (string, error) {
	if !b.breaker.Allow(b.provider) {
		logging.L(ctx).Warn("charge shed by open circuit", "provider", b.provider)
		return "", ErrChargerUnavailable
	}

	chargeID, err := b.inner.Charge(ctx, req)
	if err != nil {
		b.breaker.RecordFailure(b.provider)
		return "", err
	}
	b.breaker.RecordSuccess(b.provider)
	return chargeID, nil
}
