package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Security    SecurityConfig  `mapstructure:"security"`
	OAuth       OAuthConfig     `mapstructure:"oauth"`
	Analysis    AnalysisConfig  `mapstructure:"analysis"`
	Payments    PaymentsConfig  `mapstructure:"payments"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Sentry      SentryConfig    `mapstructure:"sentry"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	PublicURL      string   `mapstructure:"public_url"`
	MetricsKey     string   `mapstructure:"metrics_key" json:"-" yaml:"-"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type SecurityConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry         string `mapstructure:"jwt_expiry"`
	BcryptCost        int    `mapstructure:"bcrypt_cost"`
	MinPasswordLength int    `mapstructure:"min_password_length"`
	PasswordResetTTL  string `mapstructure:"password_reset_ttl"`
}

// OAuthConfig describes the external identity providers a user may be
// redirected to. Keys of Providers are provider names such as "google".
type OAuthConfig struct {
	RedirectURL string                         `mapstructure:"redirect_url"`
	Providers   map[string]OAuthProviderConfig `mapstructure:"providers"`
}

type OAuthProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	AuthorizeURL string   `mapstructure:"authorize_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type AnalysisConfig struct {
	Provider       string        `mapstructure:"provider"`
	StageDelayMin  time.Duration `mapstructure:"stage_delay_min"`
	StageDelayMax  time.Duration `mapstructure:"stage_delay_max"`
	PersistHistory bool          `mapstructure:"persist_history"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	CandleCount    int           `mapstructure:"candle_count"`
}

type PaymentsConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key" json:"-" yaml:"-"`
	WebhookSecret string `mapstructure:"webhook_secret" json:"-" yaml:"-"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
	Timeout       int    `mapstructure:"timeout"`
	ProPriceID    string `mapstructure:"pro_price_id"`
	GoldPriceID   string `mapstructure:"gold_price_id"`
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	LogLevel       string `mapstructure:"log_level"`
}

// SentryConfig enables error reporting. Reporting stays off without a DSN.
type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn" json:"-" yaml:"-"`
	Environment      string  `mapstructure:"environment"`
	Release          string  `mapstructure:"release"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

type RateLimitConfig struct {
	AuthRequestsPerSecond float64 `mapstructure:"auth_requests_per_second"`
	AuthBurst             int     `mapstructure:"auth_burst"`
}

// GetJWTExpiry returns the session lifetime, defaulting to 24h.
func (c SecurityConfig) GetJWTExpiry() time.Duration {
	if d, err := time.ParseDuration(c.JWTExpiry); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// GetPasswordResetTTL returns how long a reset token stays valid.
func (c SecurityConfig) GetPasswordResetTTL() time.Duration {
	if d, err := time.ParseDuration(c.PasswordResetTTL); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// GetTimeout returns the payments HTTP timeout.
func (c PaymentsConfig) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	bindings := map[string]string{
		"security.jwt_secret":     "JWT_SECRET",
		"telegram.bot_token":      "TELEGRAM_BOT_TOKEN",
		"payments.api_key":        "PAYMENTS_API_KEY",
		"payments.webhook_secret": "PAYMENTS_WEBHOOK_SECRET",
		"server.metrics_key":      "METRICS_KEY",
		"sentry.dsn":              "SENTRY_DSN",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate normalizes and checks the loaded configuration.
func (c *Config) Validate() error {
	// Normalize environment to lowercase for consistent comparison
	c.Environment = strings.ToLower(c.Environment)

	// Validate JWT secret in non-development environments
	if c.Environment != "development" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}
	if c.Security.JWTSecret == "" {
		c.Security.JWTSecret = devJWTSecret()
	}

	// Validate JWT expiry duration
	if c.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(c.Security.JWTExpiry); err != nil {
			return fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	// Validate bcrypt cost parameter
	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Security.BcryptCost)
	}

	if c.Security.MinPasswordLength < 1 {
		return fmt.Errorf("min password length must be positive, got %d", c.Security.MinPasswordLength)
	}

	if c.Analysis.StageDelayMin < 0 || c.Analysis.StageDelayMax < c.Analysis.StageDelayMin {
		return fmt.Errorf("invalid stage delay band [%s, %s]", c.Analysis.StageDelayMin, c.Analysis.StageDelayMax)
	}

	c.Sentry.DSN = strings.TrimSpace(c.Sentry.DSN)
	if c.Sentry.TracesSampleRate < 0 || c.Sentry.TracesSampleRate > 1 {
		return fmt.Errorf("sentry traces sample rate must be within [0, 1], got %v", c.Sentry.TracesSampleRate)
	}

	switch c.Analysis.Provider {
	case "random", "indicator":
	default:
		return fmt.Errorf("unknown analysis provider %q", c.Analysis.Provider)
	}

	return nil
}

func devJWTSecret() string {
	if host, err := os.Hostname(); err == nil {
		return "coinsight-dev-" + host
	}
	return "coinsight-dev"
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.public_url", "http://localhost:3000")
	v.SetDefault("server.metrics_key", "")

	// Set database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "coinsight")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Telegram
	v.SetDefault("telegram.bot_token", "")

	// Security
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiry", "24h")
	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.min_password_length", 6)
	v.SetDefault("security.password_reset_ttl", "1h")

	// OAuth
	v.SetDefault("oauth.redirect_url", "http://localhost:3000/auth/callback")
	v.SetDefault("oauth.providers", map[string]interface{}{
		"google": map[string]interface{}{
			"client_id":     "",
			"authorize_url": "https://accounts.google.com/o/oauth2/v2/auth",
			"scopes":        []string{"openid", "email", "profile"},
		},
	})

	// Analysis
	v.SetDefault("analysis.provider", "random")
	v.SetDefault("analysis.stage_delay_min", "600ms")
	v.SetDefault("analysis.stage_delay_max", "1200ms")
	v.SetDefault("analysis.persist_history", true)
	v.SetDefault("analysis.history_limit", 20)
	v.SetDefault("analysis.candle_count", 200)

	// Payments
	v.SetDefault("payments.base_url", "https://api.stripe.com")
	v.SetDefault("payments.api_key", "")
	v.SetDefault("payments.webhook_secret", "")
	v.SetDefault("payments.success_url", "http://localhost:3000/subscription?status=success")
	v.SetDefault("payments.cancel_url", "http://localhost:3000/subscription?status=cancel")
	v.SetDefault("payments.timeout", 15)
	v.SetDefault("payments.pro_price_id", "")
	v.SetDefault("payments.gold_price_id", "")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "coinsight-go")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.log_level", "info")

	// Sentry
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "")
	v.SetDefault("sentry.release", "")
	v.SetDefault("sentry.traces_sample_rate", 0.0)

	// Rate limiting
	v.SetDefault("rate_limit.auth_requests_per_second", 1.0)
	v.SetDefault("rate_limit.auth_burst", 5)
}
