package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(WithoutSystemEnv())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 20*time.Minute, cfg.Orders.Timeouts.Ongoing)
	assert.Equal(t, 48*time.Hour, cfg.Orders.Timeouts.Validation)
	assert.Equal(t, 30*time.Minute, cfg.Orders.Timeouts.Payment)
	assert.Equal(t, 5, cfg.Orders.ConflictRetries)
	assert.Equal(t, time.Minute, cfg.Orders.SweepInterval)
	assert.Equal(t, "manual", cfg.Payment.Provider)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "order-events", cfg.Kafka.Topic)
}

func TestLoad_Overrides(t *testing.T) {
	env := map[string]string{
		"STORE_DRIVER":     "Postgres",
		"DATABASE_URL":     "postgres://localhost/tickets",
		"KAFKA_BROKERS":    " k1:9092, ,k2:9092 ",
		"PAYMENT_TIMEOUT":  "45m",
		"ONGOING_TIMEOUT":  "not-a-duration",
		"CONFLICT_RETRIES": "9",
		"PAYMENT_BASE_URL": "https://pay.example.com/",
		"SMTP_PORT":        "2525",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 45*time.Minute, cfg.Orders.Timeouts.Payment)
	assert.Equal(t, 20*time.Minute, cfg.Orders.Timeouts.Ongoing, "invalid values fall back to the default")
	assert.Equal(t, 9, cfg.Orders.ConflictRetries)
	assert.Equal(t, "https://pay.example.com", cfg.Payment.BaseURL)
	assert.Equal(t, 2525, cfg.SMTP.Port)
}

func TestLoad_Validation(t *testing.T) {
	env := map[string]string{
		"STORE_DRIVER":     "postgres",
		"PAYMENT_PROVIDER": "stripe",
		"CONFLICT_RETRIES": "0",
	}

	_, err := Load(WithEnvMap(env), WithoutSystemEnv())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 3)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "STRIPE_API_KEY")

	_, err = Load(WithEnvMap(map[string]string{"STORE_DRIVER": "mongo"}), WithoutSystemEnv())
	assert.ErrorContains(t, err, `unknown STORE_DRIVER "mongo"`)
}

func TestRequireJWTSecret(t *testing.T) {
	cfg, err := Load(WithEnvMap(map[string]string{"JWT_SECRET": "short"}), WithoutSystemEnv())
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.RequireJWTSecret(), ErrJWTSecretTooShort)

	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.RequireJWTSecret())
}
