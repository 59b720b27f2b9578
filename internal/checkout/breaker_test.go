package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AuraquanTech/paytrust/internal/circuitbreaker"
)

func TestBreakerChargerPassesThrough(t *testing.T) {
	inner := &fakeCharger{}
	c := NewBreakerCharger(inner, circuitbreaker.New(3, time.Minute), "stripe")

	id, err := c.Charge(context.Background(), cleanRequest())
	require.NoError(t, err)
	assert.Equal(t, "ch_test_1", id)
	assert.Len(t, inner.charges, 1)
}

func TestBreakerChargerShedsWhenOpen(t *testing.T) {
	inner := &fakeCharger{err: errors.New("provider down")}
	c := NewBreakerCharger(inner, circuitbreaker.New(2, time.Minute), "stripe")

	for i := 0; i < 2; i++ {
		_, err := c.Charge(context.Background(), cleanRequest())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrChargerUnavailable, "real provider errors pass through")
	}

	// Circuit tripped: the provider is no longer called.
	before := len(inner.charges)
	_, err := c.Charge(context.Background(), cleanRequest())
	assert.ErrorIs(t, err, ErrChargerUnavailable)
	assert.Len(t, inner.charges, before)
}

func TestBreakerChargerRecoversAfterCooldown(t *testing.T) {
	inner := &fakeCharger{err: errors.New("provider down")}
	c := NewBreakerCharger(inner, circuitbreaker.New(1, 10*time.Millisecond), "stripe")

	_, err := c.Charge(context.Background(), cleanRequest())
	require.Error(t, err)
	_, err = c.Charge(context.Background(), cleanRequest())
	require.ErrorIs(t, err, ErrChargerUnavailable)

	time.Sleep(20 * time.Millisecond)
	inner.err = nil

	id, err := c.Charge(context.Background(), cleanRequest())
	require.NoError(t, err, "probe succeeds and closes the circuit")
	assert.Equal(t, "ch_test_1", id)

	_, err = c.Charge(context.Background(), cleanRequest())
	assert.NoError(t, err)
}

func TestAuthorizeEndpointShedReturns503(t *testing.T) {
	g := NewGuard(newTestEngine(), &fakeCharger{err: ErrChargerUnavailable}, nil, nil)
	r := newCheckoutRouter(t, g)

	w := postJSON(r, "/v1/checkout/authorize", cleanRequest())
	assert.Equal(t, 503, w.Code)
	assert.Contains(t, w.Body.String(), "provider_unavailable")
}
