package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full service configuration, loaded once at startup and
// passed by reference into the components that need it.
type Config struct {
	Server    ServerConfig
	JWT       JWTConfig
	OTP       OTPConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Email     EmailConfig
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host string `env:"AUTHCORE_HOST" env-default:"0.0.0.0"`
	Port uint16 `env:"AUTHCORE_PORT" env-default:"4000"`
}

// Addr returns the host:port listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// JWTConfig holds session token signing configuration.
// The secret is process-wide and immutable after startup.
type JWTConfig struct {
	Secret         string        `env:"JWT_SECRET" env-required:"true"`
	Issuer         string        `env:"JWT_ISSUER" env-default:"authcore"`
	Audience       string        `env:"JWT_AUDIENCE" env-default:"authcore"`
	TokenExpiry    time.Duration `env:"TOKEN_EXPIRY" env-default:"8h"`
	CookieHttpOnly bool          `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure   bool          `env:"COOKIE_SECURE" env-default:"true"`
}

// OTPConfig holds one-time-code settings
type OTPConfig struct {
	TTL time.Duration `env:"OTP_TTL" env-default:"10m"`
}

// PasswordConfig holds password lifecycle settings.
// ResetTokenMaxAge is fixed at one hour; HistoryDepth bounds the number of
// retained digests per credential.
type PasswordConfig struct {
	ResetTokenMaxAge time.Duration `env:"RESET_TOKEN_MAX_AGE" env-default:"3600s"`
	HistoryDepth     int           `env:"PASSWORD_HISTORY_DEPTH" env-default:"4"`
	ResetBaseURL     string        `env:"PASSWORD_RESET_BASE_URL" env-default:"http://localhost:4000/password/reset"`
}

// RateLimitConfig holds the per-route rate limit settings
type RateLimitConfig struct {
	LoginLimit     int           `env:"RATELIMIT_LOGIN_LIMIT" env-default:"5"`
	LoginWindow    time.Duration `env:"RATELIMIT_LOGIN_WINDOW" env-default:"60s"`
	APILimit       int           `env:"RATELIMIT_API_LIMIT" env-default:"60"`
	APIWindow      time.Duration `env:"RATELIMIT_API_WINDOW" env-default:"60s"`
	IncludeHeaders bool          `env:"RATELIMIT_INCLUDE_HEADERS" env-default:"true"`
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"AUTH_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"AUTH_PG_PORT" env-default:"5432"`
	Database string `env:"AUTH_PG_DATABASE" env-default:"authcore_db"`
	User     string `env:"AUTH_PG_USER" env-default:"authcore"`
	Password string `env:"AUTH_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"AUTH_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// RedisConfig holds the shared key-value store settings backing the
// OTP store and the rate limiter.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// EmailConfig holds SMTP email configuration
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME" env-default:"noreply@example.com"`
	Password string `env:"EMAIL_PASSWORD" env-default:"pwd"`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}
	return cfg, nil
}
