package main

import (
	"testing"

	"github.com/rongwang/assetverse-server/internal/config"
	"github.com/rongwang/assetverse-server/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPaymentGateway(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		env     string
		driver  string
		want    interface{}
		wantErr bool
	}{
		{name: "stripe key configured", key: "sk_test_123", env: "production", driver: config.StorePostgres, want: &gateway.StripeGateway{}},
		{name: "production without key", env: "production", driver: config.StorePostgres, wantErr: true},
		{name: "mongo without key", env: "production", driver: config.StoreMongo, wantErr: true},
		{name: "development without key", env: "development", driver: config.StorePostgres, want: &gateway.FakeGateway{}},
		{name: "memory store without key", env: "production", driver: config.StoreMemory, want: &gateway.FakeGateway{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Payment.StripeSecretKey = tt.key
			cfg.Log.Env = tt.env
			cfg.Store.Driver = tt.driver

			gw, err := newPaymentGateway(cfg, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
				assert.Nil(t, gw)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, gw)
		})
	}
}
