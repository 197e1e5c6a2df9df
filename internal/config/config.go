package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Altegio integration
	AltegioEnabled      bool
	AltegioBaseURL      string
	AltegioCompanyID    int
	AltegioPartnerToken string
	AltegioUserToken    string
	AltegioHTTPTimeout  time.Duration

	// Booking synchronization
	SyncInterval   time.Duration
	SyncWindowDays int

	// Schedule discovery
	DiscoveryWindowDays   int
	DiscoveryServiceLimit int

	// Availability
	SlotGranularityMins  int
	AvailabilityCacheTTL time.Duration

	// Loyalty
	LoyaltyEnabled bool

	// HTTP surface
	AdminToken         string
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int

	// Timezone bookings are interpreted in, IANA name.
	Timezone string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AltegioEnabled:      getEnvAsBool("ALTEGIO_ENABLED", false),
		AltegioBaseURL:      getEnv("ALTEGIO_BASE_URL", "https://api.alteg.io/api/v1"),
		AltegioCompanyID:    getEnvAsInt("ALTEGIO_COMPANY_ID", 0),
		AltegioPartnerToken: strings.TrimSpace(getEnv("ALTEGIO_PARTNER_TOKEN", "")),
		AltegioUserToken:    strings.TrimSpace(getEnv("ALTEGIO_USER_TOKEN", "")),
		AltegioHTTPTimeout:  getEnvAsDuration("ALTEGIO_HTTP_TIMEOUT", 10*time.Second),

		SyncInterval:   getEnvAsDuration("SYNC_INTERVAL", 30*time.Minute),
		SyncWindowDays: getEnvAsInt("SYNC_WINDOW_DAYS", 30),

		DiscoveryWindowDays:   getEnvAsInt("DISCOVERY_WINDOW_DAYS", 14),
		DiscoveryServiceLimit: getEnvAsInt("DISCOVERY_SERVICE_LIMIT", 5),

		SlotGranularityMins:  getEnvAsInt("SLOT_GRANULARITY_MINS", 30),
		AvailabilityCacheTTL: getEnvAsDuration("AVAILABILITY_CACHE_TTL", 5*time.Minute),

		LoyaltyEnabled: getEnvAsBool("LOYALTY_ENABLED", true),

		AdminToken:         strings.TrimSpace(getEnv("ADMIN_TOKEN", "")),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 10),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 20),

		Timezone: getEnv("TIMEZONE", "UTC"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList retrieves a comma-separated environment variable as a slice
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
