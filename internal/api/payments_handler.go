package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/models"
)

func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	var req models.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.svc.CreateCheckout(c.Request.Context(), callerEmail(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyPayment reconciles ?session_id= for the calling HR
func (h *Handler) VerifyPayment(c *gin.Context) {
	resp, err := h.svc.VerifyPayment(c.Request.Context(), callerEmail(c), c.Query("session_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListPayments(c *gin.Context) {
	payments, err := h.svc.ListPayments(c.Request.Context(), callerEmail(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.Payment]{Status: "success", Items: payments})
}

func (h *Handler) AssetTypeDistribution(c *gin.Context) {
	counts, err := h.svc.AssetTypeDistribution(c.Request.Context(), callerEmail(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.TypeCount]{Status: "success", Items: counts})
}

func (h *Handler) TopRequestedAssets(c *gin.Context) {
	top, err := h.svc.TopRequestedAssets(c.Request.Context(), callerEmail(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.AssetRequestCount]{Status: "success", Items: top})
}
