// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 呼び出し側でprocess環境を直接参照してはならない。
type Config struct {
	// Database
	DatabaseURL string

	// Session token
	JWTSecret    string
	JWTExpiry    time.Duration
	CookieMaxAge int // セッションCookieの有効期間（秒）

	// Lazada
	LazadaAppKey        string
	LazadaAppSecret     string
	AuthRedirectURLBase string
	LazadaTimeout       time.Duration

	// Sync
	SyncInterval      time.Duration
	SyncMaxConcurrent int
	PullPageSize      int

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitPull    int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Env は実行モード（development / production）。
	Env string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.LazadaAppKey = os.Getenv("LAZADA_APP_KEY")
	if cfg.LazadaAppKey == "" {
		missing = append(missing, "LAZADA_APP_KEY")
	}

	cfg.LazadaAppSecret = os.Getenv("LAZADA_APP_SECRET")
	if cfg.LazadaAppSecret == "" {
		missing = append(missing, "LAZADA_APP_SECRET")
	}

	cfg.AuthRedirectURLBase = os.Getenv("AUTH_REDIRECT_URL_BASE")
	if cfg.AuthRedirectURLBase == "" {
		missing = append(missing, "AUTH_REDIRECT_URL_BASE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTExpiry = getEnvDuration("JWT_EXPIRES_IN", 72*time.Hour)
	cfg.CookieMaxAge = getEnvInt("COOKIE_MAX_AGE", 86400)
	cfg.LazadaTimeout = getEnvDuration("LAZADA_TIMEOUT", 10*time.Second)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 6*time.Hour)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 5)
	cfg.PullPageSize = getEnvInt("PULL_PAGE_SIZE", 50)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPull = getEnvInt("RATE_LIMIT_PULL", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.Env = getEnvString("APP_ENV", "development")
	cfg.CookieSecure = cfg.Env == "production"
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
