package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// minSigningKeyLength はHS256署名鍵として受け付ける最小バイト長。
const minSigningKeyLength = 32

// MaxTokenTTL はトークン有効期間の上限かつ既定値。短縮のみ許可する。
const MaxTokenTTL = time.Hour

// SigningKey はトークン署名鍵とその識別子（kid）の組。
type SigningKey struct {
	ID     string
	Secret []byte
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（空の場合はインメモリのディレクトリとセッションテーブルを使う）
	DatabaseURL string

	// Token
	SigningKeys []SigningKey // 先頭が発行用の最新鍵。検証は全鍵で行う
	TokenTTL    time.Duration
	TokenIssuer string

	// Session
	SessionMaxAge          time.Duration // 0は無期限
	SessionCleanupInterval time.Duration

	// Rate Limit
	RateLimitAuth int // 認証エンドポイントのreq/min/client

	// Server
	ServerPort        string
	AdminAPIEnabled   bool
	CORSAllowedOrigin string // 空の場合はCORSヘッダーを付与しない

	// Log
	LogLevel string

	// Seed
	SeedSampleAccounts bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または署名鍵の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	rawKeys := os.Getenv("TOKEN_SIGNING_KEYS")
	if strings.TrimSpace(rawKeys) == "" {
		missing = append(missing, "TOKEN_SIGNING_KEYS")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	keys, err := ParseSigningKeys(rawKeys)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_SIGNING_KEYS: %w", err)
	}
	cfg.SigningKeys = keys

	// Optional fields with defaults
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", MaxTokenTTL)
	cfg.TokenIssuer = getEnvString("TOKEN_ISSUER", "credgate")
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 0)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AdminAPIEnabled = getEnvBool("ADMIN_API_ENABLED", true)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.SeedSampleAccounts = getEnvBool("SEED_SAMPLE_ACCOUNTS", false)

	if cfg.TokenTTL <= 0 || cfg.TokenTTL > MaxTokenTTL {
		return nil, fmt.Errorf("TOKEN_TTL must be in (0, %s], got %s", MaxTokenTTL, cfg.TokenTTL)
	}
	if cfg.SessionCleanupInterval <= 0 {
		return nil, fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive, got %s", cfg.SessionCleanupInterval)
	}

	return cfg, nil
}

// ParseSigningKeys は "kid:secret,kid:secret" 形式の署名鍵リストを解析する。
// 先頭の鍵が発行に使われる。kidの重複、空のkid、短すぎる鍵はエラーとする。
func ParseSigningKeys(raw string) ([]SigningKey, error) {
	var keys []SigningKey
	seen := make(map[string]bool)

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, secret, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("signing key entry must be in kid:secret form")
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("signing key id must not be empty")
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate signing key id: %s", id)
		}
		if len(secret) < minSigningKeyLength {
			return nil, fmt.Errorf("signing key %q must be at least %d bytes", id, minSigningKeyLength)
		}

		seen[id] = true
		keys = append(keys, SigningKey{ID: id, Secret: []byte(secret)})
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one signing key is required")
	}

	return keys, nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
