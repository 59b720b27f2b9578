package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AuraquanTech/paytrust/internal/fraud"
	"github.com/AuraquanTech/paytrust/internal/review"
)

type fakeCharger struct {
	charges []AuthorizeRequest
	err     error
}

func (f *fakeCharger) Charge(_ context.Context, req *AuthorizeRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.charges = append(f.charges, *req)
	return "ch_test_1", nil
}

type fakeFeed struct {
	decisions []*fraud.Assessment
	proceeded []bool
}

func (f *fakeFeed) PublishDecision(a *fraud.Assessment, proceeded bool, _ string) {
	f.decisions = append(f.decisions, a)
	f.proceeded = append(f.proceeded, proceeded)
}

func newTestEngine() *fraud.Engine {
	analyzer := fraud.NewEmailAnalyzer([]string{"mailinator.com"})
	return fraud.NewEngine(fraud.NewMemoryWindowStore(), nil, analyzer, fraud.DefaultPolicy())
}

func cleanRequest() *AuthorizeRequest {
	return &AuthorizeRequest{
		Email:       "jane@example.com",
		AmountCents: 2499,
		Currency:    "usd",
	}
}

func blockedRequest() *AuthorizeRequest {
	// micro 0.6 + disposable 0.5 stacks past the block threshold
	return &AuthorizeRequest{
		Email:       "bot@mailinator.com",
		AmountCents: 50,
	}
}

func TestAuthorizeApprovedChargesAndPublishes(t *testing.T) {
	charger := &fakeCharger{}
	feed := &fakeFeed{}
	g := NewGuard(newTestEngine(), charger, review.NewQueue(review.NewMemoryStore()), feed)

	d, err := g.Authorize(context.Background(), cleanRequest())
	require.NoError(t, err)

	assert.True(t, d.Proceeded)
	assert.Equal(t, "ch_test_1", d.ChargeID)
	assert.Empty(t, d.ReviewItemID)
	assert.Equal(t, fraud.RecommendApprove, d.Assessment.Recommendation)
	require.Len(t, feed.decisions, 1)
	assert.True(t, feed.proceeded[0])
}

func TestAuthorizeBlockedNeverCharges(t *testing.T) {
	charger := &fakeCharger{}
	feed := &fakeFeed{}
	g := NewGuard(newTestEngine(), charger, review.NewQueue(review.NewMemoryStore()), feed)

	d, err := g.Authorize(context.Background(), blockedRequest())
	require.NoError(t, err)

	assert.False(t, d.Proceeded)
	assert.Empty(t, d.ChargeID)
	assert.Equal(t, fraud.RecommendBlock, d.Assessment.Recommendation)
	assert.Empty(t, charger.charges, "blocked attempts must not reach the charger")
	require.Len(t, feed.decisions, 1)
	assert.False(t, feed.proceeded[0])
}

func TestAuthorizeReviewChargesAndEnqueues(t *testing.T) {
	charger := &fakeCharger{}
	queue := review.NewQueue(review.NewMemoryStore())
	g := NewGuard(newTestEngine(), charger, queue, nil)

	// disposable email alone scores 0.5: review band
	d, err := g.Authorize(context.Background(), &AuthorizeRequest{
		Email:       "someone@mailinator.com",
		AmountCents: 5000,
	})
	require.NoError(t, err)

	assert.True(t, d.Proceeded, "review-band attempts still proceed")
	assert.Equal(t, "ch_test_1", d.ChargeID)
	require.NotEmpty(t, d.ReviewItemID)

	item, err := queue.Get(context.Background(), d.ReviewItemID)
	require.NoError(t, err)
	assert.Equal(t, "someone@mailinator.com", item.Customer)
	assert.Equal(t, "ch_test_1", item.ChargeID)
	assert.Equal(t, review.StatusPending, item.Status)
}

func TestAuthorizeChargeFailureSurfaces(t *testing.T) {
	charger := &fakeCharger{err: errors.New("provider down")}
	g := NewGuard(newTestEngine(), charger, nil, nil)

	d, err := g.Authorize(context.Background(), cleanRequest())
	require.Error(t, err)
	assert.False(t, d.Proceeded)
}

func TestAuthorizeWithoutChargerProceedsUncharged(t *testing.T) {
	g := NewGuard(newTestEngine(), nil, nil, nil)

	d, err := g.Authorize(context.Background(), cleanRequest())
	require.NoError(t, err)
	assert.True(t, d.Proceeded)
	assert.Empty(t, d.ChargeID)
}

func TestRiskCheckValidation(t *testing.T) {
	g := NewGuard(newTestEngine(), nil, nil, nil)

	cases := []struct {
		name string
		req  *AuthorizeRequest
		want error
	}{
		{"no email and no ip", &AuthorizeRequest{AmountCents: 100}, ErrInvalidCustomer},
		{"zero amount", &AuthorizeRequest{Email: "a@b.com", AmountCents: 0}, ErrInvalidAmount},
		{"negative amount", &AuthorizeRequest{Email: "a@b.com", AmountCents: -5}, ErrInvalidAmount},
		{"bad email", &AuthorizeRequest{Email: "not-an-email", AmountCents: 100}, ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.RiskCheck(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRiskCheckKeysWindowsByNormalizedEmail(t *testing.T) {
	g := NewGuard(newTestEngine(), nil, nil, nil)

	// Three attempts under different casings of one mailbox, then a fourth.
	for _, email := range []string{"Buyer@Shop.com", "BUYER@SHOP.COM", "buyer@shop.com"} {
		a, err := g.RiskCheck(context.Background(), &AuthorizeRequest{Email: email, AmountCents: 2000})
		require.NoError(t, err)
		assert.Equal(t, "buyer@shop.com", a.Customer)
		assert.NotContains(t, a.Signals, fraud.SignalVelocityMinute)
	}

	a, err := g.RiskCheck(context.Background(), &AuthorizeRequest{Email: "buyer@shop.com", AmountCents: 2000})
	require.NoError(t, err)
	assert.Contains(t, a.Signals, fraud.SignalVelocityMinute,
		"casing variations of one mailbox share a velocity window")
}

func TestRiskCheckWithoutEmailUsesIP(t *testing.T) {
	g := NewGuard(newTestEngine(), nil, nil, nil)

	a, err := g.RiskCheck(context.Background(), &AuthorizeRequest{IP: "198.51.100.9", AmountCents: 2000})
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9", a.Customer)
}

func newCheckoutRouter(t *testing.T, g *Guard) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(g).RegisterRoutes(r.Group("/v1"))
	return r
}

func postJSON(r *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthorizeEndpointBlockedReturns402(t *testing.T) {
	g := NewGuard(newTestEngine(), &fakeCharger{}, nil, nil)
	r := newCheckoutRouter(t, g)

	w := postJSON(r, "/v1/checkout/authorize", blockedRequest())
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "payment_blocked", body["error"])
	assert.NotContains(t, w.Body.String(), "reasons", "block responses stay opaque to the buyer")
}

func TestAuthorizeEndpointApproved(t *testing.T) {
	g := NewGuard(newTestEngine(), &fakeCharger{}, nil, nil)
	r := newCheckoutRouter(t, g)

	w := postJSON(r, "/v1/checkout/authorize", cleanRequest())
	require.Equal(t, http.StatusOK, w.Code)

	var d Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.True(t, d.Proceeded)
	assert.Equal(t, "ch_test_1", d.ChargeID)
}

func TestRiskCheckEndpoint(t *testing.T) {
	g := NewGuard(newTestEngine(), nil, nil, nil)
	r := newCheckoutRouter(t, g)

	w := postJSON(r, "/v1/checkout/risk-check", cleanRequest())
	require.Equal(t, http.StatusOK, w.Code)

	var a fraud.Assessment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, fraud.RecommendApprove, a.Recommendation)

	w = postJSON(r, "/v1/checkout/risk-check", gin.H{"email": "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "amountCents is required")
}

func TestRiskCheckEndpointFillsClientIP(t *testing.T) {
	g := NewGuard(newTestEngine(), nil, nil, nil)
	r := newCheckoutRouter(t, g)

	// No email in the body: the connection's address becomes the identity.
	w := postJSON(r, "/v1/checkout/risk-check", gin.H{"amountCents": 2000})
	require.Equal(t, http.StatusOK, w.Code)

	var a fraud.Assessment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, "192.0.2.1", a.Customer, "httptest requests come from 192.0.2.1")
}
