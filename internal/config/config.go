// Package config loads the authgate server configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the server.
type Config struct {
	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":8080"`
	GRPCListenAddr  string        `env:"GRPC_LISTEN_ADDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// TrustProxy keys rate limits on the first X-Forwarded-For hop.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	// RedisAddr empty runs an in-process miniredis, for development only.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// DatabaseURL empty keeps users in memory.
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTIssuer     string        `env:"JWT_ISSUER"`
	JWTAudience   string        `env:"JWT_AUDIENCE"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	RevokeOnReuse bool          `env:"REVOKE_ON_REUSE" envDefault:"true"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	IPLimit         int64         `env:"RATE_LIMIT_IP" envDefault:"100"`
	APIKeyLimit     int64         `env:"RATE_LIMIT_API_KEY" envDefault:"10"`

	AuditEnabled   bool `env:"AUDIT_ENABLED" envDefault:"false"`
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.Production() && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required in production")
	}
	return nil
}

// Production reports whether ENVIRONMENT is production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Engine converts the environment into an Engine configuration on top of
// authgate.DefaultConfig. The Engine validates the result at Build.
func (c *Config) Engine() authgate.Config {
	cfg := authgate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(c.JWTSecret)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.Session.RevokeOnReuse = c.RevokeOnReuse
	cfg.RateLimit.IP = authgate.LimitConfig{Limit: c.IPLimit, Window: c.RateLimitWindow}
	cfg.RateLimit.APIKey = authgate.LimitConfig{Limit: c.APIKeyLimit, Window: c.RateLimitWindow}
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	return cfg
}
