package authgate

import (
	"context"
	"strings"

	"github.com/MrEthical07/authgate/internal"
	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/password"
)

func (e *Engine) buildFlows() internalflows.Service {
	issue := internalflows.IssueDeps{
		NewSessionID: newSessionID,
		NewTokenID:   internal.NewTokenID,
		SignPair:     e.signPair,
		Now:          e.now,
		RefreshTTL:   e.config.JWT.RefreshTTL,
		SessionStore: e.sessions,
	}
	verify := internalflows.VerifyDeps{Parse: e.jwtManager.Parse}
	issueFor := func(ctx context.Context, userID string) internalflows.IssueResult {
		return internalflows.RunIssue(ctx, userID, issue)
	}

	deps := internalflows.Deps{
		Issue: issue,
		Refresh: internalflows.RefreshDeps{
			ParseRefresh: func(token string) (*jwt.Claims, error) {
				return e.jwtManager.Parse(token, jwt.TypeRefresh)
			},
			NewTokenID:    internal.NewTokenID,
			SignPair:      e.signPair,
			Now:           e.now,
			RevokeOnReuse: e.config.Session.RevokeOnReuse,
			Warn:          e.logger.Warn,
			SessionStore:  e.sessions,
		},
		Verify: verify,
		Gate: internalflows.GateDeps{
			Admit:  e.admission.Admit,
			Check:  e.admission.Check,
			Verify: verify,
		},
		Logout: internalflows.LogoutDeps{
			Parse:        e.jwtManager.Parse,
			SessionStore: e.sessions,
		},
	}

	if e.credentials != nil {
		deps.Login = internalflows.LoginDeps{
			ClientIP:         clientIPFromContext,
			CheckAttempts:    e.credentialLimiter.Check,
			RecordFailure:    e.credentialLimiter.RecordFailure,
			ResetAttempts:    e.credentialLimiter.Reset,
			AttemptsExceeded: limiters.ErrCredentialRateLimited,
			Authenticate:     e.authenticate,
			UserNotFound:     ErrUserNotFound,
			Issue:            issueFor,
			OnLimiterError: func(op string, err error) {
				e.logger.Warn("authgate: credential limiter unavailable", "op", op, "err", err)
			},
		}
		deps.Register = internalflows.RegisterDeps{
			ClientIP:          clientIPFromContext,
			EnforceAttempts:   e.enforceAttempts,
			AttemptsExceeded:  limiters.ErrCredentialRateLimited,
			MinPasswordLength: e.config.Credentials.MinPasswordLength,
			DefaultPlan:       e.config.Credentials.DefaultPlan,
			AllowedPlans:      e.config.Credentials.Plans,
			HashPassword:      e.hasher.Hash,
			CreateUser: func(ctx context.Context, email, passwordHash, plan string) (string, error) {
				user, err := e.credentials.CreateUser(ctx, email, passwordHash, plan)
				return user.ID, err
			},
			UserExists:   ErrUserExists,
			NewAPIKey:    internal.NewAPIKey,
			AssignAPIKey: e.assignAPIKey,
			Issue:        issueFor,
		}
		deps.APIKey = internalflows.APIKeyDeps{
			NewAPIKey: internal.NewAPIKey,
			GetUser: func(ctx context.Context, userID string) error {
				_, err := e.credentials.GetUserByID(ctx, userID)
				return err
			},
			AssignAPIKey: e.assignAPIKey,
		}
	}

	return internalflows.New(deps)
}

func newSessionID() (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

func (e *Engine) signPair(userID, sessionID, refreshID string) (string, string, error) {
	accessID, err := internal.NewTokenID()
	if err != nil {
		return "", "", err
	}
	access, _, err := e.jwtManager.Issue(jwt.TypeAccess, userID, sessionID, accessID)
	if err != nil {
		return "", "", err
	}
	refresh, _, err := e.jwtManager.Issue(jwt.TypeRefresh, userID, sessionID, refreshID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (e *Engine) enforceAttempts(ctx context.Context, identifier, ip string) (rate.Result, error) {
	return e.credentialLimiter.Enforce(ctx, identifier, ip)
}

func (e *Engine) authenticate(ctx context.Context, email, password string) (string, bool, error) {
	user, err := e.credentials.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", false, err
	}
	ok, err := e.credentials.VerifyPassword(ctx, user, password)
	if err != nil {
		return "", false, err
	}
	if ok {
		e.rehashIfNeeded(ctx, user, password)
	}
	return user.ID, ok, nil
}

// rehashIfNeeded upgrades a hash made with weaker parameters. Failures are
// logged and never fail the login.
func (e *Engine) rehashIfNeeded(ctx context.Context, user User, pw string) {
	rh, ok := e.hasher.(password.Rehasher)
	if !ok {
		return
	}
	stale, err := rh.NeedsRehash(user.HashedPassword)
	if err != nil || !stale {
		return
	}
	hashed, err := e.hasher.Hash(pw)
	if err != nil {
		e.logger.Warn("authgate: password rehash failed", "user_id", user.ID, "err", err)
		return
	}
	if _, err := e.credentials.UpdateUser(ctx, user.ID, UserUpdate{HashedPassword: &hashed}); err != nil {
		e.logger.Warn("authgate: password rehash not stored", "user_id", user.ID, "err", err)
		return
	}
	e.metricInc(MetricPasswordRehashed)
}

func (e *Engine) assignAPIKey(ctx context.Context, userID, apiKey string) error {
	_, err := e.credentials.UpdateUser(ctx, userID, UserUpdate{APIKey: &apiKey})
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
