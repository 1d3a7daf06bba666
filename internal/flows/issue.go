package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/session"
)

// IssueFailureKind classifies token issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInvalidUser
	IssueFailureIdentifiers
	IssueFailurePersist
	IssueFailureSign
)

// IssueResult carries a fresh token pair or failure metadata.
type IssueResult struct {
	Failure      IssueFailureKind
	Err          error
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// IssueSessionStore persists new sessions.
type IssueSessionStore interface {
	Save(ctx context.Context, rec *session.Record, ttl time.Duration) error
}

// IssueDeps captures token issuance dependencies.
type IssueDeps struct {
	NewSessionID func() (string, error)
	NewTokenID   func() (string, error)
	// SignPair signs the access and refresh token; refreshID becomes the
	// refresh token's jti.
	SignPair     func(userID, sessionID, refreshID string) (string, string, error)
	Now          func() time.Time
	RefreshTTL   time.Duration
	SessionStore IssueSessionStore
}

// RunIssue opens a new session for userID. The refresh record is persisted
// before any token is signed so no token exists without a record.
func RunIssue(ctx context.Context, userID string, deps IssueDeps) IssueResult {
	if userID == "" {
		return IssueResult{Failure: IssueFailureInvalidUser, Err: errors.New("empty user id")}
	}

	sessionID, err := deps.NewSessionID()
	if err != nil {
		return IssueResult{Failure: IssueFailureIdentifiers, Err: err, UserID: userID}
	}
	return RunIssueForSession(ctx, userID, sessionID, deps)
}

// RunIssueForSession issues a pair inside sessionID, replacing whatever
// refresh record the session had.
func RunIssueForSession(ctx context.Context, userID, sessionID string, deps IssueDeps) IssueResult {
	if userID == "" {
		return IssueResult{Failure: IssueFailureInvalidUser, Err: errors.New("empty user id")}
	}

	refreshID, err := deps.NewTokenID()
	if err != nil {
		return IssueResult{Failure: IssueFailureIdentifiers, Err: err, UserID: userID, SessionID: sessionID}
	}

	now := deps.Now()
	rec := &session.Record{
		SessionID: sessionID,
		UserID:    userID,
		TokenID:   refreshID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(deps.RefreshTTL).Unix(),
	}
	if err := deps.SessionStore.Save(ctx, rec, deps.RefreshTTL); err != nil {
		return IssueResult{Failure: IssueFailurePersist, Err: err, UserID: userID, SessionID: sessionID}
	}

	access, refresh, err := deps.SignPair(userID, sessionID, refreshID)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err, UserID: userID, SessionID: sessionID}
	}

	return IssueResult{
		UserID:       userID,
		SessionID:    sessionID,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
