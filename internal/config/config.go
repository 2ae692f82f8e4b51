// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	AuthSecret      string        // セッションCookie署名用シークレット
	SessionMaxAge   int           // セッション有効期間（秒）
	SessionCacheTTL time.Duration // セッション読み取りキャッシュのTTL

	// Frontend origins
	StoreURL string // ストアアプリのベースURL
	AdminURL string // 管理コンソールのベースURL

	// Cookie
	CookieSecure bool
	CookieDomain string // サブドメイン間でCookieを共有する場合のドメイン

	// Rate Limit（req/min/クライアント）
	RateLimitGeneral  int
	RateLimitMutation int

	// Avatar
	AvatarProbe bool // サインアップ時にアバターURLへ到達性チェックを行うか

	// Server
	ServerPort string
	ServerHost string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は全件をまとめてエラーで返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthSecret = os.Getenv("AUTH_SECRET")
	if cfg.AuthSecret == "" {
		missing = append(missing, "AUTH_SECRET")
	}

	cfg.StoreURL = os.Getenv("STORE_URL")
	if cfg.StoreURL == "" {
		missing = append(missing, "STORE_URL")
	}

	cfg.AdminURL = os.Getenv("ADMIN_URL")
	if cfg.AdminURL == "" {
		missing = append(missing, "ADMIN_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 7*24*60*60)
	cfg.SessionCacheTTL = getEnvDuration("SESSION_CACHE_TTL", 5*time.Minute)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CookieSecure = strings.HasPrefix(cfg.StoreURL, "https://")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMutation = getEnvInt("RATE_LIMIT_MUTATION", 30)
	cfg.AvatarProbe = getEnvBool("AVATAR_PROBE", false)
	cfg.ServerPort = getEnvString("SERVER_PORT", "3035")
	cfg.ServerHost = getEnvString("SERVER_HOST", "localhost")

	return cfg, nil
}

// TrustedOrigins はCORS許可リストに使うフロントエンドのベースURL一覧を返す。
func (c *Config) TrustedOrigins() []string {
	return []string{c.StoreURL, c.AdminURL}
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
