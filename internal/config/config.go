package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	DatabaseURL     string
	RedisURL        string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	IndigoURL       string
	RenderTimeout   time.Duration
	AnonRatePerHour int
	AdminAPIKey     string
	LogLevel        string
	LogFormat       string

	// TrustProxyHeaders makes client IPs come from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	godotenv.Load()

	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "sqlite://chem_render.db"),
		RedisURL:    getEnv("REDIS_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		IndigoURL:   getEnv("INDIGO_URL", "http://localhost:8002"),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.AccessTokenTTL, err = getDuration("ACCESS_TOKEN_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = getDuration("REFRESH_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RenderTimeout, err = getDuration("RENDER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.AnonRatePerHour, err = getInt("ANON_RATE_PER_HOUR", 100); err != nil {
		return nil, err
	}

	if cfg.TrustProxyHeaders, err = getBool("TRUST_PROXY_HEADERS", true); err != nil {
		return nil, err
	}

	if cfg.AnonRatePerHour <= 0 {
		return nil, fmt.Errorf("ANON_RATE_PER_HOUR must be positive, got %d", cfg.AnonRatePerHour)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultVal int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
