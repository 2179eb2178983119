package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ドキュメントストアのバックエンド種別
const (
	BackendPostgres  = "postgres"
	BackendSurrealDB = "surrealdb"
	BackendMemory    = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Document store
	DocstoreBackend  string
	DocstoreMaxBatch int

	// SurrealDB（DocstoreBackendがsurrealdbの場合のみ使用）
	SurrealDBURL      string
	SurrealDBNS       string
	SurrealDBDB       string
	SurrealDBUser     string
	SurrealDBPassword string

	// Session
	SessionMaxAge    int
	ReauthMaxAge     time.Duration
	SessionCacheSize int
	SessionCacheTTL  time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral   int
	RateLimitSensitive int

	// Worker
	SessionCleanupInterval time.Duration

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

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.DocstoreBackend = getEnvString("DOCSTORE_BACKEND", BackendPostgres)
	cfg.SurrealDBURL = os.Getenv("SURREALDB_URL")
	if cfg.DocstoreBackend == BackendSurrealDB && cfg.SurrealDBURL == "" {
		missing = append(missing, "SURREALDB_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.DocstoreBackend {
	case BackendPostgres, BackendSurrealDB, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown DOCSTORE_BACKEND %q (want %s, %s or %s)",
			cfg.DocstoreBackend, BackendPostgres, BackendSurrealDB, BackendMemory)
	}

	// Optional fields with defaults
	cfg.DocstoreMaxBatch = getEnvInt("DOCSTORE_MAX_BATCH", 500)
	cfg.SurrealDBNS = getEnvString("SURREALDB_NS", "talkbox")
	cfg.SurrealDBDB = getEnvString("SURREALDB_DB", "talkbox")
	cfg.SurrealDBUser = getEnvString("SURREALDB_USER", "root")
	cfg.SurrealDBPassword = getEnvString("SURREALDB_PASS", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.ReauthMaxAge = getEnvDuration("REAUTH_MAX_AGE", 5*time.Minute)
	cfg.SessionCacheSize = getEnvInt("SESSION_CACHE_SIZE", 1024)
	cfg.SessionCacheTTL = getEnvDuration("SESSION_CACHE_TTL", 1*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSensitive = getEnvInt("RATE_LIMIT_SENSITIVE", 5)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour)
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
