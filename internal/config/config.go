// Package config はアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// キャッシュバックエンドの種別。
const (
	CacheBackendMemory   = "memory"
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Collaborators
	SheetAPIURL string
	AIBaseURL   string

	// Cache
	CacheBackend string
	DatabaseURL  string
	RedisURL     string

	// Sync
	SyncInterval time.Duration

	// Transport
	RetryMax        int
	RetryBaseDelay  time.Duration
	RequestTimeout  time.Duration
	ResponseMaxSize int64

	// Discovery
	RouteDebounce time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitPublish int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SheetAPIURL = os.Getenv("SHEET_API_URL")
	if cfg.SheetAPIURL == "" {
		missing = append(missing, "SHEET_API_URL")
	}

	cfg.AIBaseURL = os.Getenv("AI_BASE_URL")
	if cfg.AIBaseURL == "" {
		missing = append(missing, "AI_BASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Cache backend
	cfg.CacheBackend = getEnvString("CACHE_BACKEND", CacheBackendMemory)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	switch cfg.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("CACHE_BACKEND=postgres requires DATABASE_URL")
		}
	case CacheBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("CACHE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND: %q", cfg.CacheBackend)
	}

	// Optional fields with defaults
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 5*time.Minute)
	cfg.RetryMax = getEnvInt("RETRY_MAX", 3)
	cfg.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", time.Second)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
	cfg.ResponseMaxSize = getEnvInt64("RESPONSE_MAX_SIZE", 5242880)
	cfg.RouteDebounce = getEnvDuration("ROUTE_DEBOUNCE", time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPublish = getEnvInt("RATE_LIMIT_PUBLISH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
