package session

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps backend failures (network, timeouts, bad replies).
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrSessionNotFound is returned when no record exists for the session id.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when the record exists but is past its expiry.
var ErrSessionExpired = errors.New("session expired")

// ErrTokenReused is returned by Rotate when the presented token id is not the
// live one, meaning an already rotated token was replayed.
var ErrTokenReused = errors.New("refresh token reused")

// Store persists refresh records.
//
// Implementations must make Rotate atomic with respect to every other call on
// the same session id.
type Store interface {
	// Save creates or replaces the record for rec.SessionID.
	Save(ctx context.Context, rec *Record, ttl time.Duration) error
	// Get returns the live record or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*Record, error)
	// Rotate swaps presentedID for nextID. On mismatch it returns
	// ErrTokenReused and, when revoke is set, deletes the session.
	Rotate(ctx context.Context, sessionID, presentedID, nextID string, now time.Time, revoke bool) (*Record, error)
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// DeleteAllForUser removes every session of userID and returns how many existed.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	// ActiveSessionCount returns the number of sessions tracked for userID.
	ActiveSessionCount(ctx context.Context, userID string) (int, error)
}
