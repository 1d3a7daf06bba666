package authgate

import (
	"context"
	"errors"
	"fmt"

	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/password"
)

// Register creates a user with a hashed password, assigns an API key and
// opens the first session.
//
// Attempts are charged to the email and the context's client IP before any
// validation. An empty plan selects Credentials.DefaultPlan.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if !e.ready() || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	res := e.flow.Register(ctx, internalflows.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Plan:     req.Plan,
	})
	if res.Failure != internalflows.RegisterFailureNone {
		err := e.registerError(res)
		switch res.Failure {
		case internalflows.RegisterFailureExists:
			e.metricInc(MetricRegisterDuplicate)
		case internalflows.RegisterFailureRateLimited:
			e.metricInc(MetricRegisterRateLimited)
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, res.UserID, "", err, nil)
		return nil, err
	}

	user, err := e.credentials.GetUserByID(ctx, res.UserID)
	if err != nil {
		return nil, e.storeError("register", err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.metricInc(MetricTokensIssued)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, res.UserID, res.Issue.SessionID, nil, func() map[string]string {
		return map[string]string{"plan": user.Plan}
	})

	return &AuthResult{
		User:   user,
		Tokens: e.pair(res.Issue.AccessToken, res.Issue.RefreshToken),
		APIKey: res.APIKey,
	}, nil
}

func (e *Engine) registerError(res internalflows.RegisterResult) error {
	switch res.Failure {
	case internalflows.RegisterFailureRateLimited:
		return credentialRateLimit(res.Admission)
	case internalflows.RegisterFailureInvalidInput:
		return fmt.Errorf("%w: %v", ErrInvalidRequest, res.Err)
	case internalflows.RegisterFailureHash:
		if errors.Is(res.Err, password.ErrPasswordTooShort) || errors.Is(res.Err, password.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, res.Err)
		}
		return fmt.Errorf("register: %w", res.Err)
	case internalflows.RegisterFailureExists:
		return ErrUserExists
	case internalflows.RegisterFailureStore:
		return e.storeError("register", res.Err)
	case internalflows.RegisterFailureIssue:
		return e.issueError(res.Issue)
	default:
		return fmt.Errorf("register: %w", res.Err)
	}
}

// Login authenticates email and password and opens a new session.
//
// Unknown emails and wrong passwords both fail with ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if !e.ready() || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	res := e.flow.Login(ctx, email, password)
	switch res.Failure {
	case internalflows.LoginFailureNone:
	case internalflows.LoginFailureRateLimited:
		err := credentialRateLimit(res.Admission)
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, nil)
		return nil, err
	case internalflows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.UserID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	case internalflows.LoginFailureIssue:
		e.metricInc(MetricLoginFailure)
		return nil, e.issueError(res.Issue)
	default:
		e.metricInc(MetricLoginFailure)
		err := e.storeError("login", res.Err)
		e.logger.Warn("authgate: credential store unavailable", "op", "login", "err", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, nil)
		return nil, err
	}

	user, err := e.credentials.GetUserByID(ctx, res.UserID)
	if err != nil {
		return nil, e.storeError("login", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricTokensIssued)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, res.Issue.SessionID, nil, nil)

	return &AuthResult{
		User:   user,
		Tokens: e.pair(res.Issue.AccessToken, res.Issue.RefreshToken),
	}, nil
}

// CurrentUser loads the account behind a verified principal.
func (e *Engine) CurrentUser(ctx context.Context, p Principal) (User, error) {
	if !e.ready() || e.credentials == nil {
		return User{}, ErrEngineNotReady
	}
	if p.UserID == "" {
		return User{}, ErrInvalidUserID
	}
	user, err := e.credentials.GetUserByID(ctx, p.UserID)
	if err != nil {
		return User{}, e.storeError("current user", err)
	}
	return user, nil
}

// RotateAPIKey replaces userID's API key and returns the new one. The old key
// stops identifying the user immediately.
func (e *Engine) RotateAPIKey(ctx context.Context, userID string) (string, error) {
	if !e.ready() || e.credentials == nil {
		return "", ErrEngineNotReady
	}
	if userID == "" {
		return "", ErrInvalidUserID
	}
	key, err := e.flow.RotateAPIKey(ctx, userID)
	if err != nil {
		return "", e.storeError("rotate api key", err)
	}

	e.metricInc(MetricAPIKeyRotated)
	e.emitAudit(ctx, auditEventAPIKeyRotated, true, userID, "", nil, nil)
	return key, nil
}

func credentialRateLimit(res rate.Result) *RateLimitError {
	return &RateLimitError{
		Scope:      "credentials",
		RetryAfter: res.RetryAfter,
		Limit:      res.Limit,
		ResetAt:    res.ResetAt,
	}
}
