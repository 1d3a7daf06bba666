package authgate

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
	"github.com/redis/go-redis/v9"
)

// RateLimitBackend holds admission windows. Use NewMemoryRateLimitBackend
// for a single process or NewRedisRateLimitBackend to share windows.
type RateLimitBackend struct {
	backend rate.Backend
}

// NewMemoryRateLimitBackend keeps windows in a process-local map.
func NewMemoryRateLimitBackend() RateLimitBackend {
	return RateLimitBackend{backend: rate.NewMemoryBackend()}
}

// NewRedisRateLimitBackend keeps windows in Redis. Check-and-increment runs
// as one Lua script, so every process sharing client sees one counter.
func NewRedisRateLimitBackend(client redis.UniversalClient) RateLimitBackend {
	return RateLimitBackend{backend: rate.NewRedisBackend(client)}
}

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessionStore session.Store
	rateBackend  rate.Backend
	credentials  CredentialStore
	hasher       password.Hasher
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis makes Redis the default home of refresh records and rate windows.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides where refresh records live.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithRateLimitBackend overrides where admission windows live.
func (b *Builder) WithRateLimitBackend(backend RateLimitBackend) *Builder {
	b.rateBackend = backend.backend
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithPasswordHasher replaces the Argon2id hasher built from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the wall clock for token timestamps and the default
// in-memory stores.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine. Without Redis or
// explicit stores the Engine runs on process-local memory stores.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	jwtCfg := cfg.jwtConfig()
	jwtCfg.Now = now
	jwtManager, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}

	sessions := b.sessionStore
	if sessions == nil {
		if b.redis != nil {
			sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
		} else {
			sessions = session.NewMemoryStoreWithClock(now)
		}
	}

	backend := b.rateBackend
	if backend == nil {
		if b.redis != nil {
			backend = rate.NewRedisBackend(b.redis)
		} else {
			backend = rate.NewMemoryBackendWithClock(now)
		}
	}

	admission, err := limiters.NewAdmission(backend, limiters.AdmissionConfig{
		IP:     rate.Policy{Limit: cfg.RateLimit.IP.Limit, Window: cfg.RateLimit.IP.Window},
		APIKey: rate.Policy{Limit: cfg.RateLimit.APIKey.Limit, Window: cfg.RateLimit.APIKey.Window},
	})
	if err != nil {
		return nil, err
	}

	credentialLimiter, err := limiters.NewCredentialLimiter(backend, limiters.CredentialConfig{
		Identifier: rate.Policy{
			Name:   "credential_identifier",
			Limit:  cfg.Credentials.MaxAttemptsPerIdentifier,
			Window: cfg.Credentials.AttemptWindow,
		},
		IP: rate.Policy{
			Name:   "credential_ip",
			Limit:  cfg.Credentials.MaxAttemptsPerIP,
			Window: cfg.Credentials.AttemptWindow,
		},
	})
	if err != nil {
		return nil, err
	}

	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(cfg.passwordConfig())
		if err != nil {
			return nil, err
		}
		hasher = argon
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		config:            cfg,
		jwtManager:        jwtManager,
		sessions:          sessions,
		admission:         admission,
		credentialLimiter: credentialLimiter,
		credentials:       b.credentials,
		hasher:            hasher,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     now,
	}
	e.flow = e.buildFlows()

	b.built = true
	return e, nil
}
