package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/models"
)

type listAssetsQuery struct {
	HREmail     string `form:"hrEmail"`
	ID          string `form:"id"`
	Search      string `form:"search"`
	ProductType string `form:"productType" binding:"omitempty,oneof=returnable non-returnable"`
	Available   bool   `form:"available"`
	Limit       int    `form:"limit" binding:"min=0"`
	Skip        int    `form:"skip" binding:"min=0"`
}

func (h *Handler) CreateAsset(c *gin.Context) {
	var req models.CreateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	asset, err := h.svc.CreateAsset(c.Request.Context(), callerEmail(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, asset)
}

func (h *Handler) ListAssets(c *gin.Context) {
	var q listAssetsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	assets, err := h.svc.ListAssets(c.Request.Context(), models.AssetFilter{
		HREmail:       q.HREmail,
		ID:            q.ID,
		Search:        q.Search,
		ProductType:   q.ProductType,
		AvailableOnly: q.Available,
		Limit:         q.Limit,
		Skip:          q.Skip,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.Asset]{Status: "success", Items: assets})
}

func (h *Handler) UpdateAsset(c *gin.Context) {
	var req models.UpdateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	asset, err := h.svc.UpdateAsset(c.Request.Context(), callerEmail(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, asset)
}

func (h *Handler) DeleteAsset(c *gin.Context) {
	resp, err := h.svc.DeleteAsset(c.Request.Context(), callerEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListAssignedAssets(c *gin.Context) {
	assigned, err := h.svc.ListAssignedAssets(c.Request.Context(), callerEmail(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.AssignedAsset]{Status: "success", Items: assigned})
}
