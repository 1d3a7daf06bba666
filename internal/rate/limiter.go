package rate

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed    bool
	Count      int64
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Backend performs the atomic check-and-increment for one key.
type Backend interface {
	Take(ctx context.Context, key string, cost, limit int64, window time.Duration) (Result, error)
	// Peek reports whether key's current window has room for one more unit
	// without charging it.
	Peek(ctx context.Context, key string, limit int64, window time.Duration) (Result, error)
	// Reset drops key's current window.
	Reset(ctx context.Context, key string) error
}

// Policy is one named admission budget.
type Policy struct {
	Name   string
	Prefix string
	Limit  int64
	Window time.Duration
}

// Validate rejects policies that could never admit a request.
func (p Policy) Validate() error {
	if p.Limit <= 0 || p.Window <= 0 {
		return fmt.Errorf("%w: %s limit=%d window=%s", ErrInvalidPolicy, p.Name, p.Limit, p.Window)
	}
	if p.Window < time.Millisecond {
		return fmt.Errorf("%w: %s window below 1ms", ErrInvalidPolicy, p.Name)
	}
	return nil
}

// Limiter applies a Policy to keys through a Backend.
type Limiter struct {
	backend Backend
	policy  Policy
}

// New creates a [Limiter] for policy on backend.
func New(backend Backend, policy Policy) (*Limiter, error) {
	if backend == nil {
		return nil, fmt.Errorf("rate limiter %q requires a backend", policy.Name)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{backend: backend, policy: policy}, nil
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Admit charges cost against key's current window. Cost below 1 counts as 1.
func (l *Limiter) Admit(ctx context.Context, key string, cost int64) (Result, error) {
	if cost < 1 {
		cost = 1
	}
	return l.backend.Take(ctx, l.policy.Prefix+normalizeKey(key), cost, l.policy.Limit, l.policy.Window)
}

// Check reports whether key could be admitted at cost 1 without charging it.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	return l.backend.Peek(ctx, l.policy.Prefix+normalizeKey(key), l.policy.Limit, l.policy.Window)
}

// Reset clears key's window.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.backend.Reset(ctx, l.policy.Prefix+normalizeKey(key))
}

func normalizeKey(key string) string {
	if key == "" {
		return "-"
	}
	return key
}

func newResult(allowed bool, count, limit int64, now time.Time, untilReset time.Duration) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   allowed,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(untilReset),
	}
	if !allowed {
		res.RetryAfter = untilReset
	}
	return res
}
