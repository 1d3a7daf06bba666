package authgate

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B, useRedis bool) *Engine {
	b.Helper()

	cfg := testConfig()
	cfg.RateLimit.IP = LimitConfig{Limit: 1 << 40, Window: time.Hour}

	builder := New().WithConfig(cfg)
	if useRedis {
		mr, err := miniredis.Run()
		if err != nil {
			b.Fatalf("miniredis start: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.Cleanup(func() {
			_ = rdb.Close()
			mr.Close()
		})
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		b.Fatalf("build: %v", err)
	}
	return engine
}

func BenchmarkVerifyToken(b *testing.B) {
	engine := newBenchmarkEngine(b, false)
	pair, err := engine.GenerateTokens(context.Background(), "u1")
	if err != nil {
		b.Fatalf("generate: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.VerifyToken(pair.AccessToken, TokenAccess); err != nil {
			b.Fatalf("verify: %v", err)
		}
	}
}

func BenchmarkRefreshMemory(b *testing.B) {
	benchmarkRefresh(b, false)
}

func BenchmarkRefreshRedis(b *testing.B) {
	benchmarkRefresh(b, true)
}

func benchmarkRefresh(b *testing.B, useRedis bool) {
	engine := newBenchmarkEngine(b, useRedis)
	pair, err := engine.GenerateTokens(context.Background(), "u1")
	if err != nil {
		b.Fatalf("generate: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err = engine.RefreshTokens(context.Background(), pair.RefreshToken)
		if err != nil {
			b.Fatalf("refresh: %v", err)
		}
	}
}

func BenchmarkGateParallel(b *testing.B) {
	engine := newBenchmarkEngine(b, false)
	pair, err := engine.GenerateTokens(context.Background(), "u1")
	if err != nil {
		b.Fatalf("generate: %v", err)
	}
	header := "Bearer " + pair.AccessToken

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			d := engine.Gate(context.Background(), GateRequest{
				Policy:        PolicyIP,
				Key:           "10.0.0." + strconv.Itoa(i%32),
				Authorization: header,
			})
			if d.Kind != Admitted {
				b.Fatalf("gate: %s %v", d.Kind, d.Err)
			}
			i++
		}
	})
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricGateAdmitted)
		}
	})
}
