package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/credstore"
	"github.com/MrEthical07/authgate/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() authgate.Config {
	cfg := authgate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("integration-secret-0123456789abcdef")
	cfg.Password = authgate.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	return cfg
}

func testHasher(t *testing.T) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return h
}

// stack is an Engine on miniredis with an in-memory user store.
type stack struct {
	engine *authgate.Engine
	clock  *clock
	mr     *miniredis.Miniredis
}

func (s *stack) advance(d time.Duration) {
	s.clock.Advance(d)
	s.mr.FastForward(d)
	s.mr.SetTime(s.clock.Now())
}

func newStack(t *testing.T, cfg authgate.Config) *stack {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	clk := newClock()
	mr.SetTime(clk.Now())
	hasher := testHasher(t)

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(clk.Now).
		WithPasswordHasher(hasher).
		WithCredentialStore(credstore.NewMemory(hasher)).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	t.Cleanup(func() {
		_ = engine.Close(context.Background())
		_ = rdb.Close()
		mr.Close()
	})
	return &stack{engine: engine, clock: clk, mr: mr}
}
