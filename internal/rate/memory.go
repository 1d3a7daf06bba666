package rate

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	start time.Time
	size  time.Duration
	count int64
}

func (w *memoryWindow) expired(now time.Time) bool {
	return now.Sub(w.start) >= w.size
}

// MemoryBackend keeps windows in a process-local map.
type MemoryBackend struct {
	mu        sync.Mutex
	windows   map[string]*memoryWindow
	now       func() time.Time
	lastSweep time.Time
	sweepGap  time.Duration
}

// NewMemoryBackend returns a MemoryBackend on the wall clock.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithClock(time.Now)
}

// NewMemoryBackendWithClock returns a MemoryBackend reading time from now.
func NewMemoryBackendWithClock(now func() time.Time) *MemoryBackend {
	return &MemoryBackend{
		windows:  make(map[string]*memoryWindow),
		now:      now,
		sweepGap: time.Minute,
	}
}

// Take implements [Backend].
func (b *MemoryBackend) Take(_ context.Context, key string, cost, limit int64, window time.Duration) (Result, error) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked(now)

	w := b.windows[key]
	if w == nil || w.expired(now) {
		w = &memoryWindow{start: now, size: window}
		b.windows[key] = w
	}
	untilReset := w.start.Add(w.size).Sub(now)

	if w.count+cost > limit {
		return newResult(false, w.count, limit, now, untilReset), nil
	}
	w.count += cost
	return newResult(true, w.count, limit, now, untilReset), nil
}

// Peek implements [Backend].
func (b *MemoryBackend) Peek(_ context.Context, key string, limit int64, window time.Duration) (Result, error) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.windows[key]
	if w == nil || w.expired(now) {
		return newResult(limit > 0, 0, limit, now, window), nil
	}
	return newResult(w.count < limit, w.count, limit, now, w.start.Add(w.size).Sub(now)), nil
}

// Reset implements [Backend].
func (b *MemoryBackend) Reset(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.windows, key)
	b.mu.Unlock()
	return nil
}

// Len returns the number of tracked windows, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

func (b *MemoryBackend) sweepLocked(now time.Time) {
	if now.Sub(b.lastSweep) < b.sweepGap {
		return
	}
	b.lastSweep = now
	for key, w := range b.windows {
		if w.expired(now) {
			delete(b.windows, key)
		}
	}
}
