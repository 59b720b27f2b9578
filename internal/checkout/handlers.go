package checkout

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AuraquanTech/paytrust/internal/fraud"
	"github.com/AuraquanTech/paytrust/internal/logging"
)

// Handler serves the merchant-facing checkout API.
type Handler struct {
	guard *Guard
}

// NewHandler creates the checkout handler.
func NewHandler(guard *Guard) *Handler {
	return &Handler{guard: guard}
}

// RegisterRoutes mounts the checkout endpoints on the given router group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/checkout/risk-check", h.RiskCheck)
	r.POST("/checkout/authorize", h.Authorize)
}

// RiskCheck handles POST /v1/checkout/risk-check. It scores the attempt
// without charging; merchants call it to pre-screen before collecting a
// payment method.
func (h *Handler) RiskCheck(c *gin.Context) {
	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "a positive amountCents is required",
		})
		return
	}
	if req.IP == "" {
		req.IP = c.ClientIP()
	}

	assessment, err := h.guard.RiskCheck(c.Request.Context(), &req)
	if err != nil {
		respondValidationError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// Authorize handles POST /v1/checkout/authorize.
func (h *Handler) Authorize(c *gin.Context) {
	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "a positive amountCents is required",
		})
		return
	}
	if req.IP == "" {
		req.IP = c.ClientIP()
	}

	decision, err := h.guard.Authorize(c.Request.Context(), &req)
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCustomer), errors.Is(err, ErrInvalidEmail):
		respondValidationError(c, err)
		return
	case errors.Is(err, ErrChargerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "provider_unavailable",
			"message": "Payment provider is temporarily unavailable, try again shortly",
		})
		return
	case err != nil:
		logging.L(c.Request.Context()).Error("authorization failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "charge_failed",
			"message": "Payment could not be processed",
		})
		return
	}

	if decision.Assessment.Recommendation == fraud.RecommendBlock {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":          "payment_blocked",
			"message":        "Payment was declined by risk screening",
			"assessmentId":   decision.Assessment.ID,
			"recommendation": decision.Assessment.Recommendation,
		})
		return
	}

	c.JSON(http.StatusOK, decision)
}

func respondValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": err.Error(),
	})
}
