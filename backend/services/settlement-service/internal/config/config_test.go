package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SETTLEMENT_STORE_DRIVER", "memory")
	t.Setenv("SETTLEMENT_JWT_SECRET", "s3cret")
	t.Setenv("GATEWAY_TIMEOUT", "3")
	t.Setenv("PRICING_FEE_RATE", "0.05")
	t.Setenv("EMAIL_TEMPLATE_COURSE_PURCHASE", "tpl_purchase")
	t.Setenv("SETTLEMENT_SEED_FILE", "/etc/settlement/seed.yaml")
	t.Setenv("SETTLEMENT_INTERNAL_TOKEN", "internal-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPAddress())
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout())
	assert.InDelta(t, 0.05, cfg.Pricing.FeeRate, 1e-9)
	assert.InDelta(t, 31.0, cfg.Pricing.ExchangeRate, 1e-9)
	assert.Equal(t, "tpl_purchase", cfg.Email.Templates.CoursePurchase)
	assert.Equal(t, 3*time.Hour, cfg.OrderTTL())
	assert.Equal(t, "/etc/settlement/seed.yaml", cfg.Store.SeedFile)
	assert.Equal(t, "internal-token", cfg.Internal.Token)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "x"
	assert.ErrorContains(t, cfg.Validate(), "dsn")

	cfg.Store.Driver = StoreDriverMemory
	assert.NoError(t, cfg.Validate())

	cfg.Pricing.CommissionRate = 1
	assert.ErrorContains(t, cfg.Validate(), "commission")

	cfg = Default()
	cfg.Store.Driver = "sqlite"
	cfg.JWT.Secret = "x"
	assert.ErrorContains(t, cfg.Validate(), "unknown store driver")
}
