package authgate

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/password"
)

// Config is the complete Engine configuration. Start from DefaultConfig and
// override what differs.
type Config struct {
	JWT         JWTConfig
	Session     SessionConfig
	RateLimit   RateLimitConfig
	Credentials CredentialsConfig
	Password    PasswordConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix string
	// RevokeOnReuse deletes the whole session when a rotated-away refresh
	// token is presented again.
	RevokeOnReuse bool
	// OperationTimeout bounds each refresh; exceeding it yields ErrNetworkTimeout.
	OperationTimeout time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// LimitConfig is one fixed-window budget.
type LimitConfig struct {
	Limit  int64
	Window time.Duration
}

type RateLimitConfig struct {
	IP     LimitConfig
	APIKey LimitConfig
}

/*
====================================
CREDENTIALS CONFIG
====================================
*/

type CredentialsConfig struct {
	// Attempt budgets for Login and Register. Zero disables the half.
	MaxAttemptsPerIdentifier int64
	MaxAttemptsPerIP         int64
	AttemptWindow            time.Duration
	MinPasswordLength        int
	DefaultPlan              string
	Plans                    []string
}

type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. JWT.PrivateKey must still
// be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			MaxFutureIAT:  10 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:      "ag",
			RevokeOnReuse:    true,
			OperationTimeout: 3 * time.Second,
		},
		RateLimit: RateLimitConfig{
			IP:     LimitConfig{Limit: 100, Window: 15 * time.Minute},
			APIKey: LimitConfig{Limit: 10, Window: 15 * time.Minute},
		},
		Credentials: CredentialsConfig{
			MaxAttemptsPerIdentifier: 5,
			MaxAttemptsPerIP:         20,
			AttemptWindow:            15 * time.Minute,
			MinPasswordLength:        8,
			DefaultPlan:              "free",
			Plans:                    []string{"free", "pro", "enterprise"},
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Credentials.Plans = append([]string(nil), cfg.Credentials.Plans...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the Engine cannot run safely with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 {
		return errors.New("JWT MaxFutureIAT must be >= 0")
	}
	if c.JWT.Issuer != "" && strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must not be blank")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix is required")
	}
	if c.Session.OperationTimeout <= 0 {
		return errors.New("Session OperationTimeout must be > 0")
	}

	// Rate limits
	if c.RateLimit.IP.Limit <= 0 || c.RateLimit.IP.Window <= 0 {
		return errors.New("RateLimit IP Limit and Window must be > 0")
	}
	if c.RateLimit.APIKey.Limit <= 0 || c.RateLimit.APIKey.Window <= 0 {
		return errors.New("RateLimit APIKey Limit and Window must be > 0")
	}

	// Credentials
	if c.Credentials.MaxAttemptsPerIdentifier < 0 || c.Credentials.MaxAttemptsPerIP < 0 {
		return errors.New("Credentials attempt limits must be >= 0")
	}
	if (c.Credentials.MaxAttemptsPerIdentifier > 0 || c.Credentials.MaxAttemptsPerIP > 0) && c.Credentials.AttemptWindow <= 0 {
		return errors.New("Credentials AttemptWindow must be > 0 when attempts are limited")
	}
	if c.Credentials.MinPasswordLength < 8 {
		return errors.New("Credentials MinPasswordLength must be >= 8")
	}
	if c.Credentials.DefaultPlan == "" {
		return errors.New("Credentials DefaultPlan is required")
	}
	if len(c.Credentials.Plans) > 0 && !containsString(c.Credentials.Plans, c.Credentials.DefaultPlan) {
		return errors.New("Credentials DefaultPlan must be one of Plans")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (c *Config) jwtConfig() jwt.Config {
	return jwt.Config{
		AccessTTL:     c.JWT.AccessTTL,
		RefreshTTL:    c.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(c.JWT.SigningMethod),
		PrivateKey:    c.JWT.PrivateKey,
		PublicKey:     c.JWT.PublicKey,
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		Leeway:        c.JWT.Leeway,
		MaxFutureIAT:  c.JWT.MaxFutureIAT,
		KeyID:         c.JWT.KeyID,
		VerifyKeys:    c.JWT.VerifyKeys,
	}
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MinPasswordBytes: c.Credentials.MinPasswordLength,
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
