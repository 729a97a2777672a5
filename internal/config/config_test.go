package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultGatewayMode, cfg.GatewayMode)
	assert.Equal(t, DefaultGatewayTimeout, cfg.GatewayTimeout)
	assert.True(t, cfg.PlatformFeePercent.Equal(decimal.NewFromInt(10)))
}

func TestLoad_CustomFeePercent(t *testing.T) {
	setEnv(t, "PLATFORM_FEE_PERCENT", "12.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.PlatformFeePercent.Equal(decimal.RequireFromString("12.5")))
}

func TestLoad_InvalidFeePercent(t *testing.T) {
	setEnv(t, "PLATFORM_FEE_PERCENT", "ten")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PLATFORM_FEE_PERCENT")
}

func TestLoad_GatewayTimeout(t *testing.T) {
	setEnv(t, "GATEWAY_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid simulated config",
			config: Config{
				PlatformFeePercent: decimal.NewFromInt(10),
				GatewayMode:        "simulated",
			},
			wantErr: "",
		},
		{
			name: "stripe without api key",
			config: Config{
				PlatformFeePercent: decimal.NewFromInt(10),
				GatewayMode:        "stripe",
			},
			wantErr: "STRIPE_API_KEY is required",
		},
		{
			name: "stripe with api key",
			config: Config{
				PlatformFeePercent: decimal.NewFromInt(10),
				GatewayMode:        "stripe",
				StripeAPIKey:       "sk_test_123",
			},
			wantErr: "",
		},
		{
			name: "unknown gateway mode",
			config: Config{
				PlatformFeePercent: decimal.NewFromInt(10),
				GatewayMode:        "paypal",
			},
			wantErr: "GATEWAY_MODE must be",
		},
		{
			name: "negative fee percent",
			config: Config{
				PlatformFeePercent: decimal.NewFromInt(-1),
				GatewayMode:        "simulated",
			},
			wantErr: "PLATFORM_FEE_PERCENT must be between",
		},
		{
			name: "fee percent over 100",
			config: Config{
				PlatformFeePercent: decimal.NewFromInt(101),
				GatewayMode:        "simulated",
			},
			wantErr: "PLATFORM_FEE_PERCENT must be between",
		},
		{
			name: "production without admin secret",
			config: Config{
				Env:                "production",
				PlatformFeePercent: decimal.NewFromInt(10),
				GatewayMode:        "simulated",
			},
			wantErr: "ADMIN_SECRET is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}
