// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// OAuthProviderConfig は1プロバイダー分のOAuthクライアント設定を保持する。
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled はこのプロバイダーが設定済みかどうかを返す。
func (c OAuthProviderConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GitHub    OAuthProviderConfig
	Google    OAuthProviderConfig
	Facebook  OAuthProviderConfig
	Microsoft OAuthProviderConfig

	// Session
	SessionTTL     time.Duration // セッション有効期間
	SessionRenewal time.Duration // この残り時間を切ったら有効期限を延長する

	// Password
	BreachCheckBaseURL string
	BreachCheckTimeout time.Duration

	// Mail
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	MailFrom string

	// Rate Limit（req/min）
	RateLimitAuth    int
	RateLimitGeneral int

	// Cart
	AnonymousCartTTL time.Duration // 匿名カートの保持期間（クリーンアップ対象判定）

	// Content
	DefaultLocale string

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string
	FrontendURL string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（ローカル開発用、上書きはしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envはあれば読む。無くてもエラーにしない。
	_ = godotenv.Load()

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

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// OAuthプロバイダーは設定されたものだけ有効化される
	cfg.GitHub = loadProvider("GITHUB", cfg.BaseURL)
	cfg.Google = loadProvider("GOOGLE", cfg.BaseURL)
	cfg.Facebook = loadProvider("FACEBOOK", cfg.BaseURL)
	cfg.Microsoft = loadProvider("MICROSOFT", cfg.BaseURL)

	// Optional fields with defaults
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 30*24*time.Hour)
	cfg.SessionRenewal = getEnvDuration("SESSION_RENEWAL_WINDOW", 15*24*time.Hour)
	cfg.BreachCheckBaseURL = getEnvString("BREACH_CHECK_BASE_URL", "https://api.pwnedpasswords.com")
	cfg.BreachCheckTimeout = getEnvDuration("BREACH_CHECK_TIMEOUT", 5*time.Second)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvString("SMTP_PORT", "587")
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPass = getEnvString("SMTP_PASS", "")
	cfg.MailFrom = getEnvString("MAIL_FROM", "store@keebstore.example")
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.AnonymousCartTTL = getEnvDuration("ANONYMOUS_CART_TTL", 60*24*time.Hour)
	cfg.DefaultLocale = getEnvString("DEFAULT_LOCALE", "ja")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", cfg.BaseURL)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// loadProvider は1プロバイダー分のOAuth設定を環境変数から読み込む。
// リダイレクトURLの既定値は {BASE_URL}/auth/callback/{provider}。
func loadProvider(prefix, baseURL string) OAuthProviderConfig {
	provider := strings.ToLower(prefix)
	return OAuthProviderConfig{
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		RedirectURL:  getEnvString(prefix+"_REDIRECT_URL", baseURL+"/auth/callback/"+provider),
	}
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
