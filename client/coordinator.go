package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds one shared refresh call.
const DefaultRefreshTimeout = 10 * time.Second

const refreshKey = "refresh"

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (State, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (State, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (State, error) {
	return f(ctx, refreshToken)
}

// Coordinator serializes refreshes of one Session. At most one refresh is
// in flight; callers arriving while it runs wait for its result.
type Coordinator struct {
	session   Session
	refresher Refresher
	timeout   time.Duration
	onLogout  func(error)
	logger    *slog.Logger

	group     singleflight.Group
	refreshes atomic.Int64
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRefreshTimeout bounds the shared refresh call.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOnLogout registers fn to run once each time a failed refresh ends the
// session.
func WithOnLogout(fn func(error)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onLogout = fn
	}
}

// WithLogger sets the logger for refresh and logout events.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator returns a Coordinator over session and refresher.
func NewCoordinator(session Session, refresher Refresher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		session:   session,
		refresher: refresher,
		timeout:   DefaultRefreshTimeout,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the stored pair.
func (c *Coordinator) Current(ctx context.Context) (State, error) {
	return c.session.Load(ctx)
}

// Refreshes returns how many refresh calls reached the Refresher.
func (c *Coordinator) Refreshes() int64 {
	return c.refreshes.Load()
}

// Logout clears the session without calling OnLogout.
func (c *Coordinator) Logout(ctx context.Context) error {
	return c.session.Clear(ctx)
}

// EnsureFreshToken returns a pair newer than staleAccess, refreshing if
// needed. When the session already moved past staleAccess no call is made.
//
// The refresh runs detached from ctx and bounded by the refresh timeout: a
// caller whose ctx ends stops waiting, but the refresh completes for the
// others.
func (c *Coordinator) EnsureFreshToken(ctx context.Context, staleAccess string) (State, error) {
	cur, err := c.session.Load(ctx)
	if err != nil {
		return State{}, err
	}
	if cur.Empty() {
		return State{}, ErrNoSession
	}
	if staleAccess != "" && cur.AccessToken != "" && cur.AccessToken != staleAccess {
		return cur, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refresh(detached, staleAccess)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return State{}, res.Err
		}
		return res.Val.(State), nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (c *Coordinator) refresh(parent context.Context, staleAccess string) (State, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	// a previous group may have finished between our Load and DoChan
	cur, err := c.session.Load(ctx)
	if err != nil {
		return State{}, err
	}
	if cur.Empty() {
		return State{}, ErrNoSession
	}
	if staleAccess != "" && cur.AccessToken != "" && cur.AccessToken != staleAccess {
		return cur, nil
	}

	c.refreshes.Add(1)
	next, err := c.refresher.Refresh(ctx, cur.RefreshToken)
	if err == nil && (next.AccessToken == "" || next.RefreshToken == "") {
		err = fmt.Errorf("%w: incomplete token pair", ErrRefreshFailed)
	}
	if err != nil {
		err = classify(err)
		c.endSession(parent, err)
		return State{}, err
	}

	// the server already rotated; the stored refresh token is dead
	if err := c.session.Save(ctx, next); err != nil {
		c.logger.Warn("client: saving refreshed session failed", "err", err)
		err = fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		c.endSession(parent, err)
		return State{}, err
	}
	return next, nil
}

func (c *Coordinator) endSession(ctx context.Context, cause error) {
	if err := c.session.Clear(ctx); err != nil {
		c.logger.Warn("client: clearing session failed", "err", err)
	}
	c.logger.Info("client: session ended", "cause", cause)
	if c.onLogout != nil {
		c.onLogout(cause)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrRefreshRejected), errors.Is(err, ErrNetworkTimeout), errors.Is(err, ErrRefreshFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
}
