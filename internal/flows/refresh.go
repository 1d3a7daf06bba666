package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureParse
	RefreshFailureExpired
	RefreshFailureTypeMismatch
	RefreshFailureNextID
	RefreshFailureReuse
	RefreshFailureSessionNotFound
	RefreshFailureSubjectMismatch
	RefreshFailureRotate
	RefreshFailureSign
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	SessionID    string
	UserID       string
	AccessToken  string
	RefreshToken string
}

// RefreshSessionStore rotates refresh token ids.
type RefreshSessionStore interface {
	Rotate(ctx context.Context, sessionID, presentedID, nextID string, now time.Time, revoke bool) (*session.Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh  func(string) (*jwt.Claims, error)
	NewTokenID    func() (string, error)
	SignPair      func(userID, sessionID, refreshID string) (string, string, error)
	Now           func() time.Time
	RevokeOnReuse bool
	Warn          func(string, ...any)
	SessionStore  RefreshSessionStore
}

// RunRefresh verifies the presented refresh token, rotates the session's
// refresh record with a compare-and-swap and only then signs the new pair.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		case errors.Is(err, jwt.ErrTokenTypeMismatch):
			return RefreshResult{Failure: RefreshFailureTypeMismatch, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureParse, Err: err}
		}
	}

	sessionID := claims.SessionID
	nextID, err := deps.NewTokenID()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextID, Err: err, SessionID: sessionID, UserID: claims.Subject}
	}

	rec, err := deps.SessionStore.Rotate(ctx, sessionID, claims.ID, nextID, deps.Now(), deps.RevokeOnReuse)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenReused):
			if deps.Warn != nil {
				deps.Warn("authgate: refresh token reuse detected", "session_id", sessionID, "revoked", deps.RevokeOnReuse)
			}
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, SessionID: sessionID, UserID: claims.Subject}
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionExpired):
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SessionID: sessionID, UserID: claims.Subject}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err, SessionID: sessionID, UserID: claims.Subject}
		}
	}

	if rec.UserID != claims.Subject {
		_ = deps.SessionStore.Delete(ctx, sessionID)
		return RefreshResult{
			Failure:   RefreshFailureSubjectMismatch,
			Err:       errors.New("refresh subject does not own session"),
			SessionID: sessionID,
			UserID:    claims.Subject,
		}
	}

	access, refresh, err := deps.SignPair(rec.UserID, sessionID, nextID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSign, Err: err, SessionID: sessionID, UserID: rec.UserID}
	}

	return RefreshResult{
		SessionID:    sessionID,
		UserID:       rec.UserID,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
