package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/service"
	"go.uber.org/zap"
)

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindOutOfStock, service.KindSeatLimitExceeded, service.KindInvalidTransition:
		return http.StatusBadRequest
	case service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Internal errors are logged and
// replaced by a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := service.KindOf(err)
	message := err.Error()
	if kind == service.KindInternal {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		message = "Internal server error"
	}

	c.JSON(statusFor(kind), models.ErrorResponse{
		Status:  "error",
		Code:    kind.String(),
		Message: message,
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	})
}
