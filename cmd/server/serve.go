package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/assetverse-server/internal/api"
	"github.com/rongwang/assetverse-server/internal/auth"
	"github.com/rongwang/assetverse-server/internal/config"
	"github.com/rongwang/assetverse-server/internal/gateway"
	"github.com/rongwang/assetverse-server/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	gw, err := newPaymentGateway(cfg, logger)
	if err != nil {
		return err
	}

	repo, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up storage: %w", err)
	}
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	svc := service.NewDefaultService(repo, gw, service.PaymentOptions{
		SiteDomain:     cfg.Payment.SiteDomain,
		Currency:       cfg.Payment.Currency,
		GatewayTimeout: cfg.Payment.GatewayTimeout,
	}, logger)

	if cfg.Store.Driver == config.StoreMemory {
		if err := seedPackages(ctx, svc); err != nil {
			return err
		}
	}

	handler := api.NewHandler(svc, auth.NewJWTVerifier(cfg.Auth.JWTSecret), logger, cfg.Server.RequestTimeout)

	if cfg.Log.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15*time.Second + cfg.Payment.GatewayTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newPaymentGateway returns the Stripe gateway when a key is configured. Without
// one, only development or the memory store may fall back to the in-process
// gateway, whose sessions never get paid.
func newPaymentGateway(cfg *config.Config, logger *zap.Logger) (gateway.PaymentGateway, error) {
	if cfg.Payment.StripeSecretKey != "" {
		return gateway.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.GatewayTimeout), nil
	}
	if cfg.Log.Env != "development" && cfg.Store.Driver != config.StoreMemory {
		return nil, errors.New("STRIPE_SECRET_KEY is required unless LOG_ENV=development or --store memory")
	}
	logger.Warn("STRIPE_SECRET_KEY not set, using the in-process payment gateway")
	return gateway.NewFakeGateway(), nil
}
