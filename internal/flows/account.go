package flows

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/MrEthical07/authgate/internal/rate"
)

// RegisterFailureKind classifies sign-up failures.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureRateLimited
	RegisterFailureInvalidInput
	RegisterFailureHash
	RegisterFailureExists
	RegisterFailureStore
	RegisterFailureAPIKey
	RegisterFailureIssue
)

// RegisterRequest is the flow-local sign-up input.
type RegisterRequest struct {
	Email    string
	Password string
	Plan     string
}

// RegisterResult carries the new user's id, API key and first session.
type RegisterResult struct {
	Failure   RegisterFailureKind
	Err       error
	Admission rate.Result
	UserID    string
	APIKey    string
	Issue     IssueResult
}

// RegisterDeps captures sign-up dependencies.
type RegisterDeps struct {
	ClientIP          func(context.Context) string
	EnforceAttempts   func(ctx context.Context, identifier, ip string) (rate.Result, error)
	AttemptsExceeded  error
	MinPasswordLength int
	DefaultPlan       string
	AllowedPlans      []string
	HashPassword      func(string) (string, error)
	CreateUser        func(ctx context.Context, email, passwordHash, plan string) (string, error)
	UserExists        error
	NewAPIKey         func() (string, error)
	AssignAPIKey      func(ctx context.Context, userID, apiKey string) error
	Issue             func(ctx context.Context, userID string) IssueResult
}

// RunRegister validates input, stores the user with a hashed password,
// assigns an API key and opens the first session.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) RegisterResult {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ip := ""
	if deps.ClientIP != nil {
		ip = deps.ClientIP(ctx)
	}

	if deps.EnforceAttempts != nil {
		admission, err := deps.EnforceAttempts(ctx, email, ip)
		if err != nil {
			if deps.AttemptsExceeded != nil && errors.Is(err, deps.AttemptsExceeded) {
				return RegisterResult{Failure: RegisterFailureRateLimited, Err: err, Admission: admission}
			}
			return RegisterResult{Failure: RegisterFailureStore, Err: err}
		}
	}

	if err := validateRegistration(email, req.Password, deps.MinPasswordLength); err != nil {
		return RegisterResult{Failure: RegisterFailureInvalidInput, Err: err}
	}
	plan, err := resolvePlan(req.Plan, deps.DefaultPlan, deps.AllowedPlans)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureInvalidInput, Err: err}
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	userID, err := deps.CreateUser(ctx, email, hash, plan)
	if err != nil {
		if deps.UserExists != nil && errors.Is(err, deps.UserExists) {
			return RegisterResult{Failure: RegisterFailureExists, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureStore, Err: err}
	}

	apiKey, err := deps.NewAPIKey()
	if err != nil {
		return RegisterResult{Failure: RegisterFailureAPIKey, Err: err, UserID: userID}
	}
	if err := deps.AssignAPIKey(ctx, userID, apiKey); err != nil {
		return RegisterResult{Failure: RegisterFailureStore, Err: err, UserID: userID}
	}

	issued := deps.Issue(ctx, userID)
	if issued.Failure != IssueFailureNone {
		return RegisterResult{Failure: RegisterFailureIssue, Err: issued.Err, UserID: userID, APIKey: apiKey, Issue: issued}
	}

	return RegisterResult{UserID: userID, APIKey: apiKey, Issue: issued}
}

func validateRegistration(email, password string, minPassword int) error {
	if email == "" {
		return errors.New("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email is malformed")
	}
	if minPassword <= 0 {
		minPassword = 8
	}
	if len(password) < minPassword {
		return errors.New("password is too short")
	}
	if len(password) > 1024 {
		return errors.New("password is too long")
	}
	return nil
}

func resolvePlan(plan, def string, allowed []string) (string, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return def, nil
	}
	if len(allowed) == 0 {
		return plan, nil
	}
	for _, p := range allowed {
		if p == plan {
			return plan, nil
		}
	}
	return "", errors.New("unknown plan")
}
