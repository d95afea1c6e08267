package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AdminAPIKey string

	AnchorIntervalSeconds int
	AnchorThreshold       int

	NotaryProviders      string
	NotaryBaseURL        string
	NotaryAPIKey         string
	PublishWorkers       int
	PublishMaxAttempts   int
	PublishBaseBackoffMS int
	PublishMaxBackoffMS  int
	PublishTimeoutMS     int
	PublishPollSeconds   int

	AdmissionBundlePath string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		AnchorIntervalSeconds:  envIntDefault("ANCHOR_INTERVAL_SECONDS", 30),
		AnchorThreshold:        envIntDefault("ANCHOR_THRESHOLD", 64),
		NotaryProviders:        os.Getenv("NOTARY_PROVIDERS"),
		NotaryBaseURL:          os.Getenv("NOTARY_BASE_URL"),
		NotaryAPIKey:           os.Getenv("NOTARY_API_KEY"),
		PublishWorkers:         envIntDefault("PUBLISH_WORKERS", 4),
		PublishMaxAttempts:     envIntDefault("PUBLISH_MAX_ATTEMPTS", 8),
		PublishBaseBackoffMS:   envIntDefault("PUBLISH_BASE_BACKOFF_MS", 2000),
		PublishMaxBackoffMS:    envIntDefault("PUBLISH_MAX_BACKOFF_MS", 600000),
		PublishTimeoutMS:       envIntDefault("PUBLISH_TIMEOUT_MS", 5000),
		PublishPollSeconds:     envIntDefault("PUBLISH_POLL_SECONDS", 5),
		AdmissionBundlePath:    os.Getenv("ADMISSION_BUNDLE_PATH"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) AnchorInterval() time.Duration {
	if c.AnchorIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.AnchorIntervalSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// Providers splits the comma-separated NOTARY_PROVIDERS list.
func (c Config) Providers() []string {
	if c.NotaryProviders == "" {
		return nil
	}
	parts := strings.Split(c.NotaryProviders, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
