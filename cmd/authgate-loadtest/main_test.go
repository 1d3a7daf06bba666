package main

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %d", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %d", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %d", got)
	}
}

func TestRunPhaseCountsEveryOp(t *testing.T) {
	s := runPhase(100, 4, func(_ *rand.Rand, i int) error {
		if i%10 == 0 {
			return context.Canceled
		}
		return nil
	})
	if s.ops != 100 || s.failures != 10 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestRunAgainstMiniredis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	o := options{sessions: 20, concurrency: 4, ops: 50, races: 5, racers: 4, limit: 5}
	if err := run(context.Background(), o); err != nil {
		t.Fatalf("run: %v", err)
	}
}
