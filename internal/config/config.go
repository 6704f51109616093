package config

import (
	"os"
	"strconv"
	"time"
)

// Config is resolved once at startup from environment variables. An empty
// DatabaseURL selects the in-memory repository; an empty RedisAddr selects
// the no-op dashboard cache.
type Config struct {
	Port              string
	AllowedOrigin     string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	AuthSecret        string
	AccessTokenTTL    time.Duration
	DashboardCacheTTL time.Duration
	LowStockThreshold string
}

func Load() Config {
	return Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", "*"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		AuthSecret:        getEnv("AUTH_SECRET", "dev-secret-change-me"),
		AccessTokenTTL:    time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 720)) * time.Minute,
		DashboardCacheTTL: time.Duration(getEnvInt("DASHBOARD_CACHE_TTL_SECONDS", 60)) * time.Second,
		LowStockThreshold: getEnv("LOW_STOCK_THRESHOLD", "5"),
	}
}

func (c Config) Address() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
