package webhook

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const headerName = "Paytrust-Signature"

type recordingProcessor struct {
	events []*Event
}

func (p *recordingProcessor) Process(_ context.Context, event *Event) error {
	p.events = append(p.events, event)
	return nil
}

func newTestRouter(t *testing.T, processor Processor, now time.Time) (*gin.Engine, *Verifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := NewVerifier(testSecret)
	h := NewHandler(verifier, NewReplayGuard(300), processor, headerName)
	h.now = func() time.Time { return now }

	r := gin.New()
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	return r, verifier
}

func post(r *gin.Engine, body []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/v1/webhooks/payment", bytes.NewReader(body))
	if header != "" {
		req.Header.Set(headerName, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReceiveAcceptsFreshSignedEvent(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	processor := &recordingProcessor{}
	r, verifier := newTestRouter(t, processor, now)

	body := validBody()
	w := post(r, body, verifier.Sign(now.Unix(), body))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, processor.events, 1)
	assert.Equal(t, EventCheckoutCompleted, processor.events[0].Type)
}

func TestReceiveRejectsBadSignatureWithoutSideEffects(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	processor := &recordingProcessor{}
	r, _ := newTestRouter(t, processor, now)

	forger := NewVerifier("whsec_wrong")
	body := validBody()
	w := post(r, body, forger.Sign(now.Unix(), body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, processor.events, "no event may reach fulfillment on signature mismatch")
	assert.NotContains(t, w.Body.String(), testSecret)
}

func TestReceiveRejectsMissingHeader(t *testing.T) {
	processor := &recordingProcessor{}
	r, _ := newTestRouter(t, processor, time.Unix(1_720_000_000, 0))

	w := post(r, validBody(), "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, processor.events)
}

func TestReceiveRejectsStaleEvent(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	processor := &recordingProcessor{}
	r, verifier := newTestRouter(t, processor, now)

	body := validBody()
	w := post(r, body, verifier.Sign(now.Unix()-301, body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "stale_event")
	assert.Empty(t, processor.events, "stale event must not trigger fulfillment")
}

func TestReceiveReplayAfterToleranceDoesNotRefulfill(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	processor := &recordingProcessor{}
	r, verifier := newTestRouter(t, processor, now)

	body := validBody()
	header := verifier.Sign(now.Unix(), body)

	// First delivery: fresh, fulfilled once.
	w := post(r, body, header)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, processor.events, 1)

	// Identical capture replayed after the window has elapsed.
	h := NewHandler(verifier, NewReplayGuard(300), processor, headerName)
	h.now = func() time.Time { return now.Add(10 * time.Minute) }
	gin.SetMode(gin.TestMode)
	r2 := gin.New()
	h.RegisterRoutes(r2.Group("/v1"))

	req := httptest.NewRequest("POST", "/v1/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(headerName, header)
	w2 := httptest.NewRecorder()
	r2.ServeHTTP(w2, req)

	assert.Equal(t, http.StatusBadRequest, w2.Code)
	assert.Len(t, processor.events, 1, "replayed event must not be fulfilled twice")
}

func TestReceiveNilProcessorStillAcknowledges(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	r, verifier := newTestRouter(t, nil, now)

	body := validBody()
	w := post(r, body, verifier.Sign(now.Unix(), body))
	assert.Equal(t, http.StatusOK, w.Code)
}
