package webhook

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AuraquanTech/paytrust/internal/logging"
	"github.com/AuraquanTech/paytrust/internal/traces"
)

// Handler serves the gateway-facing webhook endpoint.
type Handler struct {
	verifier   *Verifier
	guard      *ReplayGuard
	processor  Processor
	headerName string
	now        func() time.Time
}

// NewHandler creates the webhook handler. processor may be nil, in which case
// verified events are acknowledged but not acted on.
func NewHandler(verifier *Verifier, guard *ReplayGuard, processor Processor, headerName string) *Handler {
	return &Handler{
		verifier:   verifier,
		guard:      guard,
		processor:  processor,
		headerName: headerName,
		now:        time.Now,
	}
}

// RegisterRoutes mounts the webhook endpoint on the given router group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/webhooks/payment", h.Receive)
}

// Receive handles POST /v1/webhooks/payment.
//
// The order is fixed: signature first, then freshness. A failed signature is
// a hard rejection with no side effects. A stale-but-valid event is logged
// and dropped without fulfillment; gateway clock skew makes it routine, so it
// is not treated as an attack by itself.
func (h *Handler) Receive(c *gin.Context) {
	ctx, span := traces.StartSpan(c.Request.Context(), "webhook.receive")
	defer span.End()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		webhooksReceived.WithLabelValues("parse_error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_payload",
			"message": "Request body could not be read",
		})
		return
	}

	header := c.GetHeader(h.headerName)

	start := time.Now()
	event, sig, err := h.verifier.Verify(body, header)
	webhookVerifyDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		webhooksReceived.WithLabelValues(resultLabel(err)).Inc()
		// Log a bounded prefix only; the full header could aid forgery attempts.
		logging.L(ctx).Warn("webhook verification failed",
			"error", err,
			"sig_prefix", prefix(header, 20),
			"body_bytes", len(body),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_signature",
			"message": "Webhook could not be verified",
		})
		return
	}

	span.SetAttributes(traces.WebhookEventType(event.Type))

	if !h.guard.IsFresh(sig.Timestamp, h.now()) {
		webhooksReceived.WithLabelValues("stale").Inc()
		logging.L(ctx).Warn("webhook rejected as stale",
			"event_id", event.ID,
			"event_type", event.Type,
			"timestamp", sig.Timestamp,
			"tolerance", h.guard.Tolerance().String(),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "stale_event",
			"message": "Webhook timestamp is outside the accepted window",
		})
		return
	}

	webhooksReceived.WithLabelValues("accepted").Inc()
	logging.L(ctx).Info("webhook accepted",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if h.processor != nil {
		if err := h.processor.Process(ctx, event); err != nil {
			// The event is authenticated; processing failures are ours to
			// retry internally, not the gateway's.
			logging.L(ctx).Error("webhook processing failed",
				"event_id", event.ID,
				"error", err,
			)
		}
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrMalformedSignatureHeader):
		return "malformed_header"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature_mismatch"
	default:
		return "parse_error"
	}
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
