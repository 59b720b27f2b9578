package review

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AuraquanTech/paytrust/internal/logging"
	"github.com/AuraquanTech/paytrust/internal/pagination"
)

// Notifier receives resolution events for the live feed.
type Notifier interface {
	PublishReviewResolved(itemID, resolution string)
}

// Handler serves the review queue API.
type Handler struct {
	queue    *Queue
	notifier Notifier
}

// NewHandler creates the review handler. notifier may be nil.
func NewHandler(queue *Queue, notifier Notifier) *Handler {
	return &Handler{queue: queue, notifier: notifier}
}

// RegisterRoutes mounts the review endpoints on the given router group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/review", h.List)
	r.GET("/review/:id", h.Get)
	r.POST("/review/:id/resolve", h.Resolve)
}

// List handles GET /v1/review. Defaults to the pending backlog; pass
// status=approved, status=rejected, or status=all for the rest. Pages
// are linked by the nextCursor field; pass it back as ?cursor= to
// continue.
func (h *Handler) List(c *gin.Context) {
	status := StatusPending
	switch raw := c.Query("status"); raw {
	case "", "pending":
	case "all":
		status = ""
	case "approved":
		status = StatusApproved
	case "rejected":
		status = StatusRejected
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "status must be pending, approved, rejected, or all",
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	items, next, err := h.queue.List(c.Request.Context(), status, limit, c.Query("cursor"))
	if errors.Is(err, pagination.ErrInvalidCursor) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not a valid page token",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list review queue", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not load review queue",
		})
		return
	}

	resp := gin.H{"items": items, "count": len(items)}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /v1/review/:id.
func (h *Handler) Get(c *gin.Context) {
	item, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Review item not found",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load review item", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not load review item",
		})
		return
	}

	c.JSON(http.StatusOK, item)
}

type resolveRequest struct {
	Outcome    string `json:"outcome" binding:"required"`
	ResolvedBy string `json:"resolvedBy"`
	Notes      string `json:"notes"`
}

// Resolve handles POST /v1/review/:id/resolve.
func (h *Handler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "outcome is required",
		})
		return
	}

	var status Status
	switch req.Outcome {
	case "approve":
		status = StatusApproved
	case "reject":
		status = StatusRejected
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_outcome",
			"message": "outcome must be approve or reject",
		})
		return
	}

	item, err := h.queue.Resolve(c.Request.Context(), c.Param("id"), Resolution{
		Status:     status,
		ResolvedBy: req.ResolvedBy,
		Notes:      req.Notes,
	})
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Review item not found",
		})
		return
	case errors.Is(err, ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_resolved",
			"message": "Review item already has a verdict",
		})
		return
	case err != nil:
		logging.L(c.Request.Context()).Error("failed to resolve review item", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not resolve review item",
		})
		return
	}

	logging.L(c.Request.Context()).Info("review item resolved",
		"item_id", item.ID,
		"outcome", string(status),
		"resolved_by", req.ResolvedBy,
	)
	if h.notifier != nil {
		h.notifier.PublishReviewResolved(item.ID, string(status))
	}

	c.JSON(http.StatusOK, item)
}
