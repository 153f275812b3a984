package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/models"
)

// RegisterUser stores the profile for the authenticated identity
func (h *Handler) RegisterUser(c *gin.Context) {
	var req models.RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if !strings.EqualFold(req.Email, callerEmail(c)) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Status:  "error",
			Code:    "FORBIDDEN",
			Message: "You can only register your own email",
		})
		return
	}

	user, err := h.svc.RegisterUser(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.svc.GetUser(c.Request.Context(), callerEmail(c), c.Param("email"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *Handler) ListPackages(c *gin.Context) {
	packages, err := h.svc.ListPackages(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.ListResponse[models.Package]{Status: "success", Items: packages})
}
