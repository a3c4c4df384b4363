package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Empty values read as unset, so this shields the test from the
	// ambient environment.
	for _, key := range []string{
		"ENVIRONMENT", "REDIS_URL", "REDIS_PASSWORD", "REDIS_DB",
		"RESERVATION_WINDOW", "GATEWAY_TIMEOUT", "CALLBACK_LOCK_TTL",
		"ENABLE_METRICS", "METRICS_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, "", cfg.RedisPassword)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 10*time.Minute, cfg.ReservationWindow)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 30*time.Second, cfg.CallbackLockTTL)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, "9090", cfg.MetricsPort)
}

func TestLoadConfig_RedisCredentials(t *testing.T) {
	t.Setenv("REDIS_URL", "redis.internal:6380")
	t.Setenv("REDIS_PASSWORD", "s3cret")
	t.Setenv("REDIS_DB", "3")

	cfg := LoadConfig()

	assert.Equal(t, "redis.internal:6380", cfg.RedisURL)
	assert.Equal(t, "s3cret", cfg.RedisPassword)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("RESERVATION_WINDOW", "5m")
	t.Setenv("ENABLE_METRICS", "false")

	cfg := LoadConfig()

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 5*time.Minute, cfg.ReservationWindow)
	assert.False(t, cfg.EnableMetrics)
}

func TestGetEnvAsDuration_BadValueFallsBack(t *testing.T) {
	t.Setenv("GATEWAY_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()

	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
}

func TestGetEnvAsInt_BadValueFallsBack(t *testing.T) {
	t.Setenv("REDIS_DB", "three")

	cfg := LoadConfig()

	assert.Equal(t, 0, cfg.RedisDB)
}
