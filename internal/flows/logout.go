package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/session"
)

// LogoutSessionStore is the slice of [session.Store] the logout flows use.
type LogoutSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Record, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Parse        func(string, jwt.TokenType) (*jwt.Claims, error)
	SessionStore LogoutSessionStore
}

// LogoutByTokenResult reports which session a token-based logout revoked.
type LogoutByTokenResult struct {
	UserID    string
	SessionID string
	Verify    VerifyResult
	// Stale is set when a refresh token no longer matches its session.
	// The session is left alone and Err is nil.
	Stale bool
	Err   error
}

// RunLogoutSession deletes sessionID. Missing sessions are not an error.
func RunLogoutSession(ctx context.Context, sessionID string, deps LogoutDeps) error {
	return deps.SessionStore.Delete(ctx, sessionID)
}

// RunLogoutAll deletes every session of userID and returns the count.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	return deps.SessionStore.DeleteAllForUser(ctx, userID)
}

// RunLogoutByToken revokes the session named by a refresh or access token.
// Expired tokens are rejected; the session they name dies with its TTL.
// A refresh token that was rotated away does not revoke the session its
// successor belongs to.
func RunLogoutByToken(ctx context.Context, token string, typ jwt.TokenType, deps LogoutDeps) LogoutByTokenResult {
	verified := RunVerify(token, typ, VerifyDeps{Parse: deps.Parse})
	if verified.Failure != VerifyFailureNone {
		return LogoutByTokenResult{Verify: verified, Err: verified.Err}
	}

	claims := verified.Claims
	res := LogoutByTokenResult{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		Verify:    verified,
	}

	if typ == jwt.TypeRefresh {
		rec, err := deps.SessionStore.Get(ctx, claims.SessionID)
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			return res
		case err != nil:
			res.Err = err
			return res
		case rec.TokenID != claims.ID:
			res.Stale = true
			return res
		}
	}

	res.Err = deps.SessionStore.Delete(ctx, claims.SessionID)
	return res
}
