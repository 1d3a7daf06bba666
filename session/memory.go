package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is a process-local [Store]. It suits single-instance deployments
// and tests; records are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	byUser  map[string]map[string]struct{}
	now     func() time.Time

	lastSweep time.Time
	sweepGap  time.Duration
}

// NewMemoryStore returns an empty MemoryStore using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns an empty MemoryStore that reads time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]Record),
		byUser:   make(map[string]map[string]struct{}),
		now:      now,
		sweepGap: time.Minute,
	}
}

// Save stores a copy of rec. The ttl is enforced through rec.ExpiresAt.
func (s *MemoryStore) Save(_ context.Context, rec *Record, ttl time.Duration) error {
	if rec == nil || rec.SessionID == "" || rec.UserID == "" {
		return errors.New("session record requires session and user id")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())

	if old, ok := s.records[rec.SessionID]; ok && old.UserID != rec.UserID {
		s.unindexLocked(old.UserID, old.SessionID)
	}
	s.records[rec.SessionID] = *rec
	ids := s.byUser[rec.UserID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.byUser[rec.UserID] = ids
	}
	ids[rec.SessionID] = struct{}{}
	return nil
}

// Get returns a copy of the live record.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweepLocked(now)

	rec, ok := s.records[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if rec.Expired(now) {
		s.deleteLocked(sessionID)
		return nil, ErrSessionNotFound
	}
	return &rec, nil
}

// Rotate performs the compare-and-swap under the store mutex.
func (s *MemoryStore) Rotate(
	_ context.Context,
	sessionID, presentedID, nextID string,
	now time.Time,
	revoke bool,
) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if rec.Expired(now) {
		s.deleteLocked(sessionID)
		return nil, ErrSessionExpired
	}
	if rec.TokenID != presentedID {
		if revoke {
			s.deleteLocked(sessionID)
		}
		return nil, ErrTokenReused
	}

	rec.TokenID = nextID
	s.records[sessionID] = rec
	return &rec, nil
}

// Delete removes the session if present.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	s.deleteLocked(sessionID)
	s.mu.Unlock()
	return nil
}

// DeleteAllForUser removes every session of userID.
func (s *MemoryStore) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byUser[userID]
	n := 0
	for id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	delete(s.byUser, userID)
	return n, nil
}

// ActiveSessionCount returns the number of unexpired sessions of userID.
func (s *MemoryStore) ActiveSessionCount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	n := 0
	for id := range s.byUser[userID] {
		if rec, ok := s.records[id]; ok && !rec.Expired(now) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of records held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// sweepLocked drops expired records at most once per sweepGap.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepGap {
		return
	}
	s.lastSweep = now
	for id, rec := range s.records {
		if rec.Expired(now) {
			s.deleteLocked(id)
		}
	}
}

func (s *MemoryStore) deleteLocked(sessionID string) {
	rec, ok := s.records[sessionID]
	if !ok {
		return
	}
	delete(s.records, sessionID)
	s.unindexLocked(rec.UserID, sessionID)
}

func (s *MemoryStore) unindexLocked(userID, sessionID string) {
	ids := s.byUser[userID]
	if ids == nil {
		return
	}
	delete(ids, sessionID)
	if len(ids) == 0 {
		delete(s.byUser, userID)
	}
}
