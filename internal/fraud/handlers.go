package fraud

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AuraquanTech/paytrust/internal/logging"
)

// ResetNotifier announces window resets to feed subscribers.
type ResetNotifier interface {
	PublishCustomerReset(customer string)
}

// Handler exposes the operational fraud surface: policy status, the
// per-customer assessment trail, and the support reset action.
type Handler struct {
	engine   *Engine
	audit    AuditStore
	notifier ResetNotifier
}

// NewHandler creates the fraud handler. audit may be nil if no trail is
// kept; notifier may be nil to skip reset announcements.
func NewHandler(engine *Engine, audit AuditStore, notifier ResetNotifier) *Handler {
	return &Handler{engine: engine, audit: audit, notifier: notifier}
}

// RegisterRoutes mounts the fraud endpoints on the given router group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/fraud/status", h.Status)
	r.GET("/fraud/customers/:identity/assessments", h.ListAssessments)
	r.POST("/fraud/customers/:identity/reset", h.ResetCustomer)
}

// Status handles GET /v1/fraud/status. It reports the active policy
// limits and thresholds, never secrets or per-customer counters.
func (h *Handler) Status(c *gin.Context) {
	p := h.engine.Policy()

	tracked, err := h.engine.TrackedCustomers(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to count tracked customers", "error", err)
		tracked = -1
	}

	c.JSON(http.StatusOK, gin.H{
		"policy": gin.H{
			"velocityLimitPerMinute": p.VelocityLimitPerMinute,
			"velocityLimitPerHour":   p.VelocityLimitPerHour,
			"spendingLimitCents":     p.SpendingLimitCents,
			"microAmountCents":       p.MicroAmountCents,
			"largeAmountCents":       p.LargeAmountCents,
			"thresholdLow":           p.ThresholdLow,
			"thresholdHigh":          p.ThresholdHigh,
		},
		"trackedCustomers": tracked,
	})
}

// ListAssessments handles GET /v1/fraud/customers/:identity/assessments.
func (h *Handler) ListAssessments(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_available",
			"message": "Assessment trail is not configured",
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	assessments, err := h.audit.ListByCustomer(c.Request.Context(), c.Param("identity"), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list assessments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not load assessments",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"assessments": assessments, "count": len(assessments)})
}

// ResetCustomer handles POST /v1/fraud/customers/:identity/reset. Support
// uses it to clear window state after a verified false positive.
func (h *Handler) ResetCustomer(c *gin.Context) {
	identity := c.Param("identity")

	if err := h.engine.Reset(c.Request.Context(), identity); err != nil {
		logging.L(c.Request.Context()).Error("failed to reset customer windows",
			"customer", identity,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not reset customer",
		})
		return
	}

	if h.notifier != nil {
		h.notifier.PublishCustomerReset(identity)
	}

	logging.L(c.Request.Context()).Info("customer fraud windows reset", "customer", identity)
	c.JSON(http.StatusOK, gin.H{"reset": true})
}
