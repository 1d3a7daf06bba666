//go:build integration

package test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode is one Redis deployment the suite runs against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes always includes miniredis. REDIS_ADDR adds a standalone server,
// REDIS_CLUSTER_ADDRS a cluster and REDIS_SENTINEL_ADDRS a failover setup.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) (redis.UniversalClient, func()) {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis: %v", err)
			}
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return rdb, func() { _ = rdb.Close(); mr.Close() }
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				return connectOrSkip(t, redis.NewClient(&redis.Options{Addr: addr}), true)
			},
		})
	}
	if addrs := splitAddrs(os.Getenv("REDIS_CLUSTER_ADDRS")); len(addrs) > 0 {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				return connectOrSkip(t, redis.NewClusterClient(&redis.ClusterOptions{Addrs: addrs}), false)
			},
		})
	}
	if addrs := splitAddrs(os.Getenv("REDIS_SENTINEL_ADDRS")); len(addrs) > 0 {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		modes = append(modes, redisMode{
			name: "sentinel",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				return connectOrSkip(t, redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: addrs,
				}), true)
			},
		})
	}
	return modes
}

func connectOrSkip(t *testing.T, rdb redis.UniversalClient, flush bool) (redis.UniversalClient, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("cannot connect to Redis: %v", err)
	}
	if flush {
		rdb.FlushDB(context.Background())
	}
	return rdb, func() {
		if flush {
			rdb.FlushDB(context.Background())
		}
		_ = rdb.Close()
	}
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func buildEngine(t *testing.T, rdb redis.UniversalClient, mutate func(*authgate.Config)) *authgate.Engine {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := authgate.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return engine
}

func TestRedisCompat_RefreshRotation(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()
			engine := buildEngine(t, rdb, nil)
			ctx := context.Background()

			pair, err := engine.GenerateTokens(ctx, "u-compat")
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			next, err := engine.RefreshTokens(ctx, pair.RefreshToken)
			if err != nil {
				t.Fatalf("refresh: %v", err)
			}
			if _, err := engine.RefreshTokens(ctx, pair.RefreshToken); !errors.Is(err, authgate.ErrRefreshTokenInvalid) {
				t.Fatalf("expected replay rejected, got %v", err)
			}
			if _, err := engine.RefreshTokens(ctx, next.RefreshToken); !errors.Is(err, authgate.ErrRefreshTokenInvalid) {
				t.Fatalf("expected session revoked after replay, got %v", err)
			}
		})
	}
}

func TestRedisCompat_ConcurrentRotationSingleWinner(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()
			engine := buildEngine(t, rdb, nil)
			ctx := context.Background()

			for round := 0; round < 20; round++ {
				pair, err := engine.GenerateTokens(ctx, fmt.Sprintf("u-%d", round))
				if err != nil {
					t.Fatalf("generate: %v", err)
				}
				var (
					wg      sync.WaitGroup
					winners atomic.Int32
				)
				start := make(chan struct{})
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						<-start
						if _, err := engine.RefreshTokens(ctx, pair.RefreshToken); err == nil {
							winners.Add(1)
						}
					}()
				}
				close(start)
				wg.Wait()
				if winners.Load() != 1 {
					t.Fatalf("round %d: expected one winner, got %d", round, winners.Load())
				}
			}
		})
	}
}

func TestRedisCompat_AdmissionExactUnderContention(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()
			engine := buildEngine(t, rdb, func(c *authgate.Config) {
				c.RateLimit.IP = authgate.LimitConfig{Limit: 25, Window: time.Minute}
			})
			ctx := context.Background()

			var (
				wg       sync.WaitGroup
				admitted atomic.Int64
				failed   atomic.Int64
			)
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := engine.Admit(ctx, authgate.PolicyIP, "198.51.100.1", 1)
					switch {
					case err == nil:
						admitted.Add(1)
					case !errors.Is(err, authgate.ErrRateLimitExceeded):
						failed.Add(1)
					}
				}()
			}
			wg.Wait()

			if failed.Load() != 0 {
				t.Fatalf("unexpected backend failures: %d", failed.Load())
			}
			if admitted.Load() != 25 {
				t.Fatalf("expected exactly 25 admitted, got %d", admitted.Load())
			}
		})
	}
}

func TestRedisCompat_LogoutAll(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()
			engine := buildEngine(t, rdb, nil)
			ctx := context.Background()

			var pairs []authgate.TokenPair
			for i := 0; i < 3; i++ {
				p, err := engine.GenerateTokens(ctx, "u-multi")
				if err != nil {
					t.Fatalf("generate: %v", err)
				}
				pairs = append(pairs, p)
			}
			n, err := engine.LogoutAll(ctx, "u-multi")
			if err != nil || n != 3 {
				t.Fatalf("expected 3 sessions revoked, got %d %v", n, err)
			}
			for _, p := range pairs {
				if _, err := engine.RefreshTokens(ctx, p.RefreshToken); !errors.Is(err, authgate.ErrRefreshTokenInvalid) {
					t.Fatalf("expected revoked, got %v", err)
				}
			}
		})
	}
}
