package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authgate/internal"
	"github.com/MrEthical07/authgate/internal/audit"
	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
)

// Engine issues, verifies and rotates tokens and admits requests.
//
// An Engine is built once through [Builder.Build] and is safe for concurrent
// use afterwards.
type Engine struct {
	config            Config
	jwtManager        *jwt.Manager
	sessions          session.Store
	admission         *limiters.Admission
	credentialLimiter *limiters.CredentialLimiter
	credentials       CredentialStore
	hasher            password.Hasher
	audit             *audit.Dispatcher
	metrics           *Metrics
	logger            *slog.Logger
	flow              internalflows.Service
	now               func() time.Time
}

// Close drains pending audit events, waiting at most until ctx ends.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.audit.Close(ctx)
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the Engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

/*
====================================
TOKENS
====================================
*/

// GenerateTokens opens a new session for userID and returns its first pair.
//
// The refresh record is stored before any token is signed. It fails with
// ErrInvalidUserID for an empty userID and ErrStoreUnavailable when the
// session store cannot be reached.
func (e *Engine) GenerateTokens(ctx context.Context, userID string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	return e.finishIssue(ctx, e.flow.Issue(ctx, userID))
}

// GenerateTokensForSession issues a pair inside an existing session,
// superseding whatever refresh token the session held.
func (e *Engine) GenerateTokensForSession(ctx context.Context, userID, sessionID string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return TokenPair{}, fmt.Errorf("%w: malformed session id", ErrInvalidRequest)
	}
	return e.finishIssue(ctx, e.flow.IssueForSession(ctx, userID, sessionID))
}

func (e *Engine) finishIssue(ctx context.Context, res internalflows.IssueResult) (TokenPair, error) {
	if res.Failure != internalflows.IssueFailureNone {
		return TokenPair{}, e.issueError(res)
	}

	e.metricInc(MetricTokensIssued)
	e.emitAudit(ctx, auditEventTokensIssued, true, res.UserID, res.SessionID, nil, nil)
	return e.pair(res.AccessToken, res.RefreshToken), nil
}

func (e *Engine) issueError(res internalflows.IssueResult) error {
	switch res.Failure {
	case internalflows.IssueFailureInvalidUser:
		return ErrInvalidUserID
	case internalflows.IssueFailurePersist:
		return e.storeError("issue tokens", res.Err)
	default:
		return fmt.Errorf("issue tokens: %w", res.Err)
	}
}

func (e *Engine) pair(access, refresh string) TokenPair {
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    e.config.JWT.AccessTTL,
	}
}

// VerifyToken checks signature, expiry and type and returns the principal.
// It never consults the session store: an access token stays valid until
// exp even after its session is revoked.
func (e *Engine) VerifyToken(token string, expected TokenType) (Principal, error) {
	if !e.ready() {
		return Principal{}, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flow.Verify(token, expected)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	if res.Failure != internalflows.VerifyFailureNone {
		e.metricInc(MetricVerifyFailure)
		return Principal{}, verifyError(res)
	}

	e.metricInc(MetricVerifySuccess)
	return principalFromClaims(res.Claims), nil
}

func verifyError(res internalflows.VerifyResult) error {
	switch res.Failure {
	case internalflows.VerifyFailureExpired:
		return ErrTokenExpired
	case internalflows.VerifyFailureTypeMismatch:
		return ErrTokenTypeMismatch
	default:
		return ErrTokenInvalid
	}
}

func principalFromClaims(claims *jwt.Claims) Principal {
	p := Principal{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		TokenType: claims.Type,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p
}

// RefreshTokens exchanges a refresh token for a new pair.
//
// The token's jti is swapped for a fresh one in a single compare-and-swap on
// the session's refresh record; only the caller that wins the swap receives
// tokens. Presenting a rotated-away token fails with ErrRefreshTokenInvalid
// and, with Session.RevokeOnReuse, revokes the whole session. The call is
// bounded by Session.OperationTimeout and yields ErrNetworkTimeout past it.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	start := time.Now()
	opCtx, cancel := context.WithTimeout(ctx, e.config.Session.OperationTimeout)
	defer cancel()

	res := e.flow.Refresh(opCtx, refreshToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricRefreshLatency, time.Since(start))
	}

	if res.Failure != internalflows.RefreshFailureNone {
		err := e.refreshError(opCtx, res)
		e.metricInc(MetricRefreshFailure)
		switch {
		case res.Failure == internalflows.RefreshFailureReuse:
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, res.SessionID, err, func() map[string]string {
				return map[string]string{"revoked": fmt.Sprint(e.config.Session.RevokeOnReuse)}
			})
		case errors.Is(err, ErrNetworkTimeout):
			e.metricInc(MetricRefreshTimeout)
			e.logger.Warn("authgate: refresh timed out", "session_id", res.SessionID, "timeout", e.config.Session.OperationTimeout)
		case errors.Is(err, ErrStoreUnavailable):
			e.logger.Warn("authgate: session store unavailable", "op", "refresh", "err", res.Err)
			e.emitAudit(ctx, auditEventStoreUnavailable, false, res.UserID, res.SessionID, err, nil)
		default:
			e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.SessionID, err, nil)
		}
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.SessionID, nil, nil)
	return e.pair(res.AccessToken, res.RefreshToken), nil
}

func (e *Engine) refreshError(opCtx context.Context, res internalflows.RefreshResult) error {
	switch res.Failure {
	case internalflows.RefreshFailureParse:
		return ErrTokenInvalid
	case internalflows.RefreshFailureExpired:
		return ErrTokenExpired
	case internalflows.RefreshFailureTypeMismatch:
		return ErrTokenTypeMismatch
	case internalflows.RefreshFailureReuse,
		internalflows.RefreshFailureSessionNotFound,
		internalflows.RefreshFailureSubjectMismatch:
		return ErrRefreshTokenInvalid
	case internalflows.RefreshFailureRotate:
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return ErrNetworkTimeout
		}
		return e.storeError("refresh", res.Err)
	default:
		return fmt.Errorf("refresh: %w", res.Err)
	}
}

// GenerateAPIKey returns a new opaque API key. API keys never expire; they
// identify a caller for the API-key admission policy.
func (e *Engine) GenerateAPIKey() (string, error) {
	return internal.NewAPIKey()
}

/*
====================================
REVOCATION
====================================
*/

// Logout revokes the session named by refreshToken. A refresh token that was
// already rotated away returns [ErrRefreshTokenInvalid] and revokes nothing.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flow.LogoutByToken(ctx, refreshToken, jwt.TypeRefresh)
	if res.Verify.Failure != internalflows.VerifyFailureNone {
		return verifyError(res.Verify)
	}
	if res.Err != nil {
		return e.storeError("logout", res.Err)
	}
	if res.Stale {
		e.emitAudit(ctx, auditEventLogoutSession, false, res.UserID, res.SessionID, ErrRefreshTokenInvalid, nil)
		return ErrRefreshTokenInvalid
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, res.UserID, res.SessionID, nil, nil)
	return nil
}

// LogoutSession revokes sessionID. Revoking a missing session is not an error.
func (e *Engine) LogoutSession(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.flow.LogoutSession(ctx, sessionID); err != nil {
		return e.storeError("logout session", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// LogoutAll revokes every session of userID and returns how many there were.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidUserID
	}
	n, err := e.flow.LogoutAll(ctx, userID)
	if err != nil {
		return 0, e.storeError("logout all", err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions": fmt.Sprint(n)}
	})
	return n, nil
}

// ActiveSessionCount returns the number of live sessions of userID.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.ActiveSessionCount(ctx, userID)
	if err != nil {
		return 0, e.storeError("active sessions", err)
	}
	return n, nil
}

/*
====================================
ERRORS
====================================
*/

// storeError keeps root sentinels intact and folds every backend failure
// into ErrStoreUnavailable.
func (e *Engine) storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != CodeInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetworkTimeout
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
