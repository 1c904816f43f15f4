// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 認証方式（AUTH_TYPE）
const (
	AuthTypeSession = "session_auth"
	AuthTypeBasic   = "basic_auth"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string
	DBConnectRetries int

	// Server
	ServerHost      string
	ServerPort      string
	ShutdownTimeout time.Duration

	// Session
	SessionName   string
	SessionMaxAge int

	// Cookie
	CookieSecure bool
	CookieDomain string

	// Auth
	AuthType   string
	BcryptCost int

	// CORS
	CORSAllowedOrigin string

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitLogin int
	RateLimitReset int

	// Logging
	LogRedactFields []string

	// SMTP（SMTPHostが空の場合はメール送信しない）
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Addr はHTTPサーバーの待ち受けアドレスを返す。
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// MailEnabled はリセットトークンのメール送信が有効かを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBConnectRetries = getEnvInt("DB_CONNECT_RETRIES", 5)
	cfg.ServerHost = getEnvString("SERVER_HOST", "0.0.0.0")
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.SessionName = getEnvString("SESSION_NAME", "session_id")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.AuthType = getEnvString("AUTH_TYPE", AuthTypeSession)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.RateLimitReset = getEnvInt("RATE_LIMIT_RESET", 5)
	cfg.LogRedactFields = getEnvList("LOG_REDACT_FIELDS",
		[]string{"email", "password", "session_id", "reset_token", "hashed_password"})
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "noreply@localhost")

	if cfg.AuthType != AuthTypeSession && cfg.AuthType != AuthTypeBasic {
		return nil, fmt.Errorf("invalid AUTH_TYPE %q: must be %q or %q", cfg.AuthType, AuthTypeSession, AuthTypeBasic)
	}

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

// getEnvList はカンマ区切りの値を読み込む。空要素は無視する。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
