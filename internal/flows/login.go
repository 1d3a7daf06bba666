package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/internal/rate"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureStore
	LoginFailureIssue
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Failure   LoginFailureKind
	Err       error
	Admission rate.Result
	UserID    string
	Issue     IssueResult
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	ClientIP func(context.Context) string
	// CheckAttempts reports whether another attempt is within budget
	// without charging it.
	CheckAttempts func(ctx context.Context, identifier, ip string) (rate.Result, error)
	// RecordFailure charges one failed attempt.
	RecordFailure func(ctx context.Context, identifier, ip string) error
	// ResetAttempts clears the identifier's failures after a success.
	ResetAttempts func(ctx context.Context, identifier string) error
	// Authenticate returns the user id and whether the password matched.
	Authenticate     func(ctx context.Context, email, password string) (string, bool, error)
	UserNotFound     error
	AttemptsExceeded error
	Issue            func(ctx context.Context, userID string) IssueResult
	// OnLimiterError observes limiter bookkeeping failures that do not
	// change the login outcome.
	OnLimiterError func(op string, err error)
}

// RunLogin checks the attempt budget, authenticates and opens a session.
// Only failed attempts are charged; a success clears the identifier's count.
// Unknown users and wrong passwords produce the same failure kind.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	ip := ""
	if deps.ClientIP != nil {
		ip = deps.ClientIP(ctx)
	}

	if deps.CheckAttempts != nil {
		admission, err := deps.CheckAttempts(ctx, email, ip)
		if err != nil {
			if deps.AttemptsExceeded != nil && errors.Is(err, deps.AttemptsExceeded) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err, Admission: admission}
			}
			return LoginResult{Failure: LoginFailureStore, Err: err}
		}
	}

	if email == "" || password == "" {
		return invalidLogin(ctx, email, ip, "", deps)
	}

	userID, ok, err := deps.Authenticate(ctx, email, password)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return invalidLogin(ctx, email, ip, "", deps)
		}
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}
	if !ok {
		return invalidLogin(ctx, email, ip, userID, deps)
	}

	if deps.ResetAttempts != nil {
		if err := deps.ResetAttempts(ctx, email); err != nil && deps.OnLimiterError != nil {
			deps.OnLimiterError("reset", err)
		}
	}

	issued := deps.Issue(ctx, userID)
	if issued.Failure != IssueFailureNone {
		return LoginResult{Failure: LoginFailureIssue, Err: issued.Err, UserID: userID, Issue: issued}
	}
	return LoginResult{UserID: userID, Issue: issued}
}

func invalidLogin(ctx context.Context, email, ip, userID string, deps LoginDeps) LoginResult {
	if deps.RecordFailure != nil {
		if err := deps.RecordFailure(ctx, email, ip); err != nil && deps.OnLimiterError != nil {
			deps.OnLimiterError("record_failure", err)
		}
	}
	return LoginResult{Failure: LoginFailureInvalidCredentials, UserID: userID}
}
