package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/auth"
	"github.com/rongwang/assetverse-server/internal/service"
	"go.uber.org/zap"
)

// Handler serves the HTTP API
type Handler struct {
	svc            service.Service
	verifier       auth.Verifier
	logger         *zap.Logger
	requestTimeout time.Duration
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service, verifier auth.Verifier, logger *zap.Logger, requestTimeout time.Duration) *Handler {
	return &Handler{
		svc:            svc,
		verifier:       verifier,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

// SetupRoutes registers middleware and every route on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(Recovery(h.logger), RequestLogger(h.logger), CORS())
	if h.requestTimeout > 0 {
		router.Use(RequestTimeout(h.requestTimeout))
	}

	router.GET("/health", h.Health)

	public := router.Group("/api")
	public.GET("/packages", h.ListPackages)

	authed := router.Group("/api")
	authed.Use(AuthMiddleware(h.verifier))
	hrOnly := RequireHR(h.svc, h.logger)

	// Users
	authed.POST("/users", h.RegisterUser)
	authed.GET("/users/:email", h.GetUser)

	// Assets
	authed.GET("/assets", h.ListAssets)
	authed.POST("/assets", hrOnly, h.CreateAsset)
	authed.PATCH("/assets/:id", hrOnly, h.UpdateAsset)
	authed.DELETE("/assets/:id", hrOnly, h.DeleteAsset)
	authed.GET("/assigned-assets", h.ListAssignedAssets)

	// Requests
	authed.POST("/requests", h.CreateRequest)
	authed.GET("/requests", h.ListRequests)
	authed.GET("/requests/mine", h.ListMyRequests)
	authed.GET("/requests/hr", hrOnly, h.ListHRRequests)
	authed.PATCH("/requests/:id/status", hrOnly, h.UpdateRequestStatus)
	authed.PATCH("/requests/:id/return", h.ReturnRequest)

	// Affiliations
	authed.GET("/affiliations", h.ListAffiliations)
	authed.GET("/affiliations/team", h.ListTeam)
	authed.GET("/affiliations/companies", h.ListCompanies)
	authed.GET("/affiliations/birthdays", h.TeamBirthdays)
	authed.DELETE("/affiliations/:employeeEmail", hrOnly, h.RemoveEmployee)

	// Payments
	authed.POST("/payments/checkout-session", hrOnly, h.CreateCheckoutSession)
	authed.PATCH("/payments/verify", hrOnly, h.VerifyPayment)
	authed.GET("/payments", hrOnly, h.ListPayments)

	// Analytics
	authed.GET("/analytics/asset-types", hrOnly, h.AssetTypeDistribution)
	authed.GET("/analytics/top-requested", hrOnly, h.TopRequestedAssets)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Connected to AssetVerse server"})
}
