package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Realtime drivers
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverNATS     = "nats"
	DriverMemory   = "memory" // single instance, no broker
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	Environment    string

	RealtimeDriver  string // postgres, redis, nats or memory
	RealtimeChannel string
	NATSURL         string
	HubBufferSize   int

	RakutenAppID       string
	RakutenBaseURL     string
	HotelLookupTimeout time.Duration
	HotelLookupRPS     float64
	HotelLookupBurst   int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		Environment:    getEnv("ENVIRONMENT", "production"),

		RealtimeDriver:  strings.ToLower(getEnv("REALTIME_DRIVER", DriverPostgres)),
		RealtimeChannel: getEnv("REALTIME_CHANNEL", "spot_changes"),
		NATSURL:         getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		HubBufferSize:   getIntEnv("REALTIME_BUFFER", 16),

		// Older deployments set the travel API key under the other two names
		RakutenAppID:       getEnv("RAKUTEN_APP_ID", getEnv("NEXT_PUBLIC_RAKUTEN_APP_ID", getEnv("RAKUTEN_APPLICATION_ID", ""))),
		RakutenBaseURL:     strings.TrimRight(getEnv("HOTEL_SEARCH_URL", "https://app.rakuten.co.jp"), "/"),
		HotelLookupTimeout: getDurationEnv("HOTEL_LOOKUP_TIMEOUT", 10*time.Second),
		HotelLookupRPS:     getFloatEnv("HOTEL_LOOKUP_RPS", 1),
		HotelLookupBurst:   getIntEnv("HOTEL_LOOKUP_BURST", 5),
	}, nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
