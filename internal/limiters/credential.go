package limiters

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authgate/internal/rate"
)

// ErrCredentialRateLimited is returned when login or sign-up attempts for an
// identifier or address exceed their budget.
var ErrCredentialRateLimited = errors.New("credential attempts rate limited")

// CredentialConfig bounds password attempts.
type CredentialConfig struct {
	Identifier rate.Policy
	IP         rate.Policy
}

// CredentialLimiter throttles password attempts per identifier and per IP.
type CredentialLimiter struct {
	identifier *rate.Limiter
	ip         *rate.Limiter
}

// NewCredentialLimiter builds the limiter. A zero policy disables that half.
func NewCredentialLimiter(backend rate.Backend, cfg CredentialConfig) (*CredentialLimiter, error) {
	l := &CredentialLimiter{}
	if cfg.Identifier.Limit > 0 {
		if cfg.Identifier.Prefix == "" {
			cfg.Identifier.Prefix = "rl:cred:id:"
		}
		lim, err := rate.New(backend, cfg.Identifier)
		if err != nil {
			return nil, err
		}
		l.identifier = lim
	}
	if cfg.IP.Limit > 0 {
		if cfg.IP.Prefix == "" {
			cfg.IP.Prefix = "rl:cred:ip:"
		}
		lim, err := rate.New(backend, cfg.IP)
		if err != nil {
			return nil, err
		}
		l.ip = lim
	}
	return l, nil
}

// Check reports whether another attempt for identifier from ip is within
// budget. Nothing is charged.
func (l *CredentialLimiter) Check(ctx context.Context, identifier, ip string) (rate.Result, error) {
	res := rate.Result{Allowed: true}
	if l == nil {
		return res, nil
	}

	if l.identifier != nil && identifier != "" {
		r, err := l.identifier.Check(ctx, normalizeIdentifier(identifier))
		if err != nil {
			return r, err
		}
		if !r.Allowed {
			return r, ErrCredentialRateLimited
		}
		res = r
	}

	if l.ip != nil && ip != "" {
		r, err := l.ip.Check(ctx, ip)
		if err != nil {
			return r, err
		}
		if !r.Allowed {
			return r, ErrCredentialRateLimited
		}
	}

	return res, nil
}

// RecordFailure charges one failed attempt to identifier and ip.
func (l *CredentialLimiter) RecordFailure(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if l.identifier != nil && identifier != "" {
		if _, err := l.identifier.Admit(ctx, normalizeIdentifier(identifier), 1); err != nil {
			return err
		}
	}
	if l.ip != nil && ip != "" {
		if _, err := l.ip.Admit(ctx, ip, 1); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears identifier's failures. The address budget is left alone.
func (l *CredentialLimiter) Reset(ctx context.Context, identifier string) error {
	if l == nil || l.identifier == nil || identifier == "" {
		return nil
	}
	return l.identifier.Reset(ctx, normalizeIdentifier(identifier))
}

// Enforce charges one attempt. The returned result is the one that denied,
// or the identifier result when both admit.
func (l *CredentialLimiter) Enforce(ctx context.Context, identifier, ip string) (rate.Result, error) {
	res := rate.Result{Allowed: true}
	if l == nil {
		return res, nil
	}

	if l.identifier != nil && identifier != "" {
		r, err := l.identifier.Admit(ctx, normalizeIdentifier(identifier), 1)
		if err != nil {
			return r, err
		}
		if !r.Allowed {
			return r, ErrCredentialRateLimited
		}
		res = r
	}

	if l.ip != nil && ip != "" {
		r, err := l.ip.Admit(ctx, ip, 1)
		if err != nil {
			return r, err
		}
		if !r.Allowed {
			return r, ErrCredentialRateLimited
		}
	}

	return res, nil
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
