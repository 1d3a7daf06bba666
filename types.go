package authgate

import (
	"context"
	"time"

	"github.com/MrEthical07/authgate/internal/limiters"
	"github.com/MrEthical07/authgate/jwt"
)

// TokenType separates access tokens from refresh tokens.
type TokenType = jwt.TokenType

const (
	// TokenAccess is the short-lived bearer token attached to requests.
	TokenAccess TokenType = jwt.TypeAccess
	// TokenRefresh is the long-lived token exchanged for a new pair.
	TokenRefresh TokenType = jwt.TypeRefresh
)

// Principal is the identity derived from a verified token. It is immutable
// for the lifetime of a request.
type Principal struct {
	UserID    string
	SessionID string
	TokenType TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is the result of issuance and refresh. ExpiresIn is the access
// token lifetime.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// User is the account record owned by a CredentialStore.
type User struct {
	ID             string
	Email          string
	HashedPassword string
	Plan           string
	Credits        int64
	APIKey         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserUpdate lists the fields UpdateUser changes. Nil fields are left alone.
type UserUpdate struct {
	Email          *string
	HashedPassword *string
	Plan           *string
	Credits        *int64
	APIKey         *string
}

// RegisterRequest is the sign-up input.
type RegisterRequest struct {
	Email    string
	Password string
	Plan     string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   User
	Tokens TokenPair
	// APIKey is set only by Register.
	APIKey string
}

// CredentialStore is the user persistence the Engine consumes.
//
// Implementations return ErrUserNotFound for unknown users, ErrUserExists
// when CreateUser hits a taken email and wrap backend failures with
// ErrStoreUnavailable.
type CredentialStore interface {
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	VerifyPassword(ctx context.Context, user User, password string) (bool, error)
	CreateUser(ctx context.Context, email, passwordHash, plan string) (User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (User, error)
}

// Policy selects which admission budget a request is charged against.
type Policy uint8

const (
	// PolicyIP charges the caller's network address.
	PolicyIP Policy = Policy(limiters.ClassIP)
	// PolicyAPIKey charges the presented API key.
	PolicyAPIKey Policy = Policy(limiters.ClassAPIKey)
)

// String returns the policy's metric and log label.
func (p Policy) String() string {
	return limiters.Class(p).String()
}

// Admission is the outcome of one rate-limit check.
type Admission struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}
