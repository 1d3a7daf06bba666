package client

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedRefresher blocks every call until release is closed.
type gatedRefresher struct {
	calls   atomic.Int64
	release chan struct{}
	err     error
}

func newGatedRefresher() *gatedRefresher {
	return &gatedRefresher{release: make(chan struct{})}
}

func (r *gatedRefresher) Refresh(ctx context.Context, refreshToken string) (State, error) {
	n := r.calls.Add(1)
	select {
	case <-r.release:
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	if r.err != nil {
		return State{}, r.err
	}
	return State{
		AccessToken:  "access-" + strconv.FormatInt(n, 10),
		RefreshToken: refreshToken + "+",
	}, nil
}

func seeded() *MemorySession {
	return NewMemorySession(State{AccessToken: "access-0", RefreshToken: "refresh-0"})
}

func TestEnsureFreshTokenSingleFlight(t *testing.T) {
	refresher := newGatedRefresher()
	session := seeded()
	c := NewCoordinator(session, refresher)

	const n = 20
	var wg sync.WaitGroup
	results := make([]State, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.EnsureFreshToken(context.Background(), "access-0")
		}(i)
	}

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	// let the stragglers join the in-flight call before it completes
	time.Sleep(20 * time.Millisecond)
	close(refresher.release)
	wg.Wait()

	assert.Equal(t, int64(1), refresher.calls.Load())
	assert.Equal(t, int64(1), c.Refreshes())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", results[i].AccessToken)
		assert.Equal(t, "refresh-0+", results[i].RefreshToken)
	}

	stored, err := session.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
}

func TestEnsureFreshTokenSkipsWhenSessionMovedOn(t *testing.T) {
	refresher := newGatedRefresher()
	close(refresher.release)
	session := NewMemorySession(State{AccessToken: "access-5", RefreshToken: "refresh-5"})
	c := NewCoordinator(session, refresher)

	got, err := c.EnsureFreshToken(context.Background(), "access-4")
	require.NoError(t, err)
	assert.Equal(t, "access-5", got.AccessToken)
	assert.Zero(t, refresher.calls.Load())
}

func TestEnsureFreshTokenNoSession(t *testing.T) {
	c := NewCoordinator(NewMemorySession(State{}), newGatedRefresher())
	_, err := c.EnsureFreshToken(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestEnsureFreshTokenWaiterCancelDoesNotCancelRefresh(t *testing.T) {
	refresher := newGatedRefresher()
	session := seeded()
	c := NewCoordinator(session, refresher)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.EnsureFreshToken(ctx, "access-0")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(refresher.release)
	require.Eventually(t, func() bool {
		st, _ := session.Load(context.Background())
		return st.AccessToken == "access-1"
	}, time.Second, time.Millisecond)
}

func TestEnsureFreshTokenFailureLogsOutOnce(t *testing.T) {
	refresher := newGatedRefresher()
	refresher.err = ErrRefreshRejected
	session := seeded()

	var logouts atomic.Int64
	c := NewCoordinator(session, refresher, WithOnLogout(func(err error) {
		assert.ErrorIs(t, err, ErrRefreshRejected)
		logouts.Add(1)
	}))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.EnsureFreshToken(context.Background(), "access-0")
		}(i)
	}
	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(refresher.release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrRefreshRejected)
	}
	assert.Equal(t, int64(1), logouts.Load())

	st, err := session.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Empty())
}

// saveFailingSession stores nothing new; Clear still works.
type saveFailingSession struct {
	*MemorySession
}

func (saveFailingSession) Save(context.Context, State) error {
	return errors.New("disk full")
}

func TestEnsureFreshTokenSaveFailureEndsSession(t *testing.T) {
	var calls atomic.Int64
	refresher := RefresherFunc(func(_ context.Context, refreshToken string) (State, error) {
		calls.Add(1)
		return State{AccessToken: "access-1", RefreshToken: refreshToken + "+"}, nil
	})
	session := saveFailingSession{seeded()}

	var logouts atomic.Int64
	c := NewCoordinator(session, refresher, WithOnLogout(func(err error) {
		assert.ErrorIs(t, err, ErrRefreshFailed)
		logouts.Add(1)
	}))

	_, err := c.EnsureFreshToken(context.Background(), "access-0")
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, int64(1), logouts.Load())

	st, err := session.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Empty(), "the rotated-away refresh token must not be kept")

	_, err = c.EnsureFreshToken(context.Background(), "access-0")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, int64(1), calls.Load(), "a dead refresh token must not be presented again")
}

func TestEnsureFreshTokenTimeout(t *testing.T) {
	refresher := newGatedRefresher()
	c := NewCoordinator(seeded(), refresher, WithRefreshTimeout(20*time.Millisecond))

	_, err := c.EnsureFreshToken(context.Background(), "access-0")
	assert.ErrorIs(t, err, ErrNetworkTimeout)
	close(refresher.release)
}

func TestEnsureFreshTokenRejectsIncompletePair(t *testing.T) {
	refresher := RefresherFunc(func(context.Context, string) (State, error) {
		return State{AccessToken: "only-access"}, nil
	})
	session := seeded()
	c := NewCoordinator(session, refresher)

	_, err := c.EnsureFreshToken(context.Background(), "access-0")
	assert.ErrorIs(t, err, ErrRefreshFailed)

	st, _ := session.Load(context.Background())
	assert.True(t, st.Empty(), "a partial pair must never be stored")
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(context.DeadlineExceeded), ErrNetworkTimeout)
	assert.ErrorIs(t, classify(errors.New("boom")), ErrRefreshFailed)
	assert.ErrorIs(t, classify(ErrRefreshRejected), ErrRefreshRejected)
}
