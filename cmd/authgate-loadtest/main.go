package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sessionState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

type options struct {
	sessions    int
	concurrency int
	ops         int
	races       int
	racers      int
	limit       int64
	redisAddr   string
}

func main() {
	var o options
	flag.IntVar(&o.sessions, "sessions", 10000, "number of sessions to seed")
	flag.IntVar(&o.concurrency, "concurrency", 256, "number of concurrent workers")
	flag.IntVar(&o.ops, "ops", 100000, "operations per phase (verify, refresh)")
	flag.IntVar(&o.races, "races", 500, "sessions used in the rotation race phase")
	flag.IntVar(&o.racers, "racers", 8, "concurrent refreshes per raced token")
	flag.Int64Var(&o.limit, "limit", 100, "per-key budget in the admission race phase")
	flag.StringVar(&o.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	flag.Parse()

	if o.sessions <= 0 || o.concurrency <= 0 || o.ops <= 0 || o.races <= 0 || o.racers <= 1 || o.limit <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops, races and limit must be > 0; racers must be > 1")
		os.Exit(2)
	}

	if err := run(context.Background(), o); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	client, cleanup, err := connect(o.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := authgate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-secret-0123456789abcdefghij")
	cfg.RateLimit.IP = authgate.LimitConfig{Limit: o.limit, Window: time.Hour}
	cfg.Session.OperationTimeout = 10 * time.Second

	engine, err := authgate.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close(ctx)

	states := make([]sessionState, o.sessions)
	fmt.Printf("seeding %d sessions...\n", o.sessions)
	startSeed := time.Now()
	for i := range states {
		pair, err := engine.GenerateTokens(ctx, fmt.Sprintf("user-%d", i%1000))
		if err != nil {
			return fmt.Errorf("seeding: %w", err)
		}
		states[i].access, states[i].refresh = pair.AccessToken, pair.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verify := runPhase(o.ops, o.concurrency, func(r *rand.Rand, _ int) error {
		_, err := engine.VerifyToken(states[r.Intn(len(states))].access, authgate.TokenAccess)
		return err
	})
	refresh := runPhase(o.ops, o.concurrency, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, err := engine.RefreshTokens(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access, s.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("verify", verify)
	printStats("refresh", refresh)

	if err := rotationRace(ctx, engine, o); err != nil {
		return err
	}
	return admissionRace(ctx, engine, o)
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("starting miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// rotationRace presents each token from several goroutines at once. Exactly
// one exchange per token may win.
func rotationRace(ctx context.Context, engine *authgate.Engine, o options) error {
	var (
		violations atomic.Int64
		rejected   atomic.Int64
		other      atomic.Int64
		wg         sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < o.races; i++ {
		pair, err := engine.GenerateTokens(ctx, fmt.Sprintf("racer-%d", i))
		if err != nil {
			return fmt.Errorf("race seed: %w", err)
		}

		var winners atomic.Int64
		gate := make(chan struct{})
		for j := 0; j < o.racers; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				_, err := engine.RefreshTokens(ctx, pair.RefreshToken)
				switch {
				case err == nil:
					winners.Add(1)
				case errors.Is(err, authgate.ErrRefreshTokenInvalid):
					rejected.Add(1)
				default:
					other.Add(1)
				}
			}()
		}
		close(gate)
		wg.Wait()
		if winners.Load() != 1 {
			violations.Add(1)
		}
	}

	fmt.Printf("rotation race: tokens=%d racers=%d rejected=%d errors=%d violations=%d total=%s\n",
		o.races, o.racers, rejected.Load(), other.Load(), violations.Load(), time.Since(start).Round(time.Millisecond))
	if violations.Load() > 0 {
		return fmt.Errorf("%d tokens were exchanged more than once or not at all", violations.Load())
	}
	return nil
}

// admissionRace hammers a handful of keys and checks that each admitted
// exactly its budget.
func admissionRace(ctx context.Context, engine *authgate.Engine, o options) error {
	const keys = 16
	var admitted [keys]atomic.Int64

	stats := runPhase(int(o.limit)*keys*4, o.concurrency, func(_ *rand.Rand, i int) error {
		k := i % keys
		_, err := engine.Admit(ctx, authgate.PolicyIP, fmt.Sprintf("10.0.0.%d", k), 1)
		if err == nil {
			admitted[k].Add(1)
			return nil
		}
		if errors.Is(err, authgate.ErrRateLimitExceeded) {
			return nil
		}
		return err
	})
	printStats("admission", stats)

	for k := range admitted {
		if got := admitted[k].Load(); got != o.limit {
			return fmt.Errorf("key %d admitted %d requests, budget is %d", k, got, o.limit)
		}
	}
	fmt.Printf("admission race: keys=%d each admitted exactly %d\n", keys, o.limit)
	return nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(cursor.Add(1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
