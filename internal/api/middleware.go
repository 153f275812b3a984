package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/auth"
	"github.com/rongwang/assetverse-server/internal/models"
	"go.uber.org/zap"
)

const (
	ctxEmailKey = "email"
	ctxUserKey  = "user"
)

// UserLookup resolves the stored user record behind a verified email
type UserLookup interface {
	LookupUser(ctx context.Context, email string) (*models.User, error)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:  "error",
		Code:    "UNAUTHORIZED",
		Message: message,
	})
}

// AuthMiddleware verifies the bearer token and stores the caller's email in the context
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authentication required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid token format")
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				abortUnauthorized(c, "Authentication required")
				return
			}
			abortUnauthorized(c, "Invalid token")
			return
		}

		c.Set(ctxEmailKey, principal.Email)
		c.Next()
	}
}

// RequireHR lets the request through only when the caller's stored role is hr
func RequireHR(lookup UserLookup, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := lookup.LookupUser(c.Request.Context(), callerEmail(c))
		if err != nil {
			respondError(c, logger, err)
			c.Abort()
			return
		}
		if !user.IsHR() {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Status:  "error",
				Code:    "FORBIDDEN",
				Message: "HR access required",
			})
			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// RequestTimeout bounds the handler's context
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs method, path, status and latency of every request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if email := c.GetString(ctxEmailKey); email != "" {
			fields = append(fields, zap.String("caller", email))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

// Recovery turns a panic into a 500 JSON response
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"))
				c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
					Status:  "error",
					Code:    "INTERNAL_ERROR",
					Message: "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// CORS allows the browser dashboard to call the API from another origin
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func callerEmail(c *gin.Context) string {
	return c.GetString(ctxEmailKey)
}
