package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/auth"
	"github.com/rongwang/assetverse-server/internal/models"
)

type listRequestsQuery struct {
	RequesterEmail string `form:"requesterEmail"`
	HREmail        string `form:"hrEmail"`
	Status         string `form:"status"`
	AssetType      string `form:"assetType"`
	Search         string `form:"search"`
	Limit          int    `form:"limit" binding:"min=0"`
	Skip           int    `form:"skip" binding:"min=0"`
}

func (q listRequestsQuery) filter() models.RequestFilter {
	return models.RequestFilter{
		RequesterEmail: auth.NormalizeEmail(q.RequesterEmail),
		HREmail:        auth.NormalizeEmail(q.HREmail),
		Status:         models.RequestStatus(q.Status),
		AssetType:      q.AssetType,
		Search:         q.Search,
		Limit:          q.Limit,
		Skip:           q.Skip,
	}
}

func (h *Handler) CreateRequest(c *gin.Context) {
	var req models.CreateAssetRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	request, err := h.svc.CreateRequest(c.Request.Context(), callerEmail(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// ListRequests requires the caller to appear as requester or HR in the filter
func (h *Handler) ListRequests(c *gin.Context) {
	var q listRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	caller := callerEmail(c)
	f := q.filter()
	if f.RequesterEmail != caller && f.HREmail != caller {
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Status:  "error",
			Code:    "FORBIDDEN",
			Message: "requesterEmail or hrEmail must be your own email",
		})
		return
	}

	h.listRequests(c, f)
}

func (h *Handler) ListMyRequests(c *gin.Context) {
	var q listRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	f := q.filter()
	f.RequesterEmail = callerEmail(c)
	f.HREmail = ""
	h.listRequests(c, f)
}

func (h *Handler) ListHRRequests(c *gin.Context) {
	var q listRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	f := q.filter()
	f.HREmail = callerEmail(c)
	f.RequesterEmail = ""
	h.listRequests(c, f)
}

func (h *Handler) listRequests(c *gin.Context, f models.RequestFilter) {
	resp, err := h.svc.ListRequests(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateRequestStatus(c *gin.Context) {
	var req models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.svc.UpdateRequestStatus(c.Request.Context(), callerEmail(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ReturnRequest(c *gin.Context) {
	request, err := h.svc.ReturnRequest(c.Request.Context(), callerEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.StatusUpdateResponse{Status: "success", Request: request})
}
