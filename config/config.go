package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration. The listen address itself belongs to the
	// pocketbase serve command.
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Payment gateway configuration
	PayGate PayGateConfig

	// Inventory configuration
	ReservationWindow time.Duration

	// Timeout configuration
	GatewayTimeout  time.Duration
	CallbackLockTTL time.Duration

	// Monitoring / sidecar server
	EnableMetrics bool
	MetricsPort   string
}

type PayGateConfig struct {
	BaseURL       string `json:"baseUrl"`
	PartnerID     string `json:"partnerId"`
	ClientID      string `json:"clientId"`
	ClientKey     string `json:"clientKey"`
	HMACKey       string `json:"hmacKey"`
	WebhookSecret string `json:"webhookSecret"`

	PNSubKey    string `json:"pn_subkey"`
	PNSubSecret string `json:"pn_subsecret"`
	PNUUID      string `json:"pn_uuid"`
	PNChannel   string `json:"pn_channel"`
	PNCipherKey string `json:"pn_cipherKey"`
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Payment gateway
		PayGate: PayGateConfig{
			BaseURL:       getEnv("PAYGATE_BASE_URL", ""),
			PartnerID:     getEnv("PAYGATE_PARTNER_ID", ""),
			ClientID:      getEnv("PAYGATE_CLIENT_ID", ""),
			ClientKey:     getEnv("PAYGATE_CLIENT_KEY", ""),
			HMACKey:       getEnv("PAYGATE_HMAC_KEY", ""),
			WebhookSecret: getEnv("PAYGATE_WEBHOOK_SECRET", ""),

			PNSubKey:    getEnv("PAYGATE_PN_SUBKEY", ""),
			PNSubSecret: getEnv("PAYGATE_PN_SECRET", ""),
			PNUUID:      getEnv("PAYGATE_PN_UUID", "ticket-marketplace"),
			PNChannel:   getEnv("PAYGATE_PN_CHANNEL", "paygate-notifications"),
			PNCipherKey: getEnv("PAYGATE_PN_CIPHER_KEY", ""),
		},

		// Inventory
		ReservationWindow: getEnvAsDuration("RESERVATION_WINDOW", "10m"),

		// Timeouts
		GatewayTimeout:  getEnvAsDuration("GATEWAY_TIMEOUT", "10s"),
		CallbackLockTTL: getEnvAsDuration("CALLBACK_LOCK_TTL", "30s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
