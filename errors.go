package authgate

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrMissingCredentials is returned when a request carries no bearer token or a malformed Authorization header.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid covers bad signatures, malformed payloads, wrong algorithms and unknown keys.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when the current time is at or past the token's exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenTypeMismatch is returned when an access token is presented where a refresh token is required, or the reverse.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
	// ErrRefreshTokenInvalid is returned when a refresh token was rotated away, revoked or never recorded.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrUserNotFound is returned by a CredentialStore for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by a CredentialStore when the email is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrRateLimitExceeded is matched by every *RateLimitError.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrStoreUnavailable wraps session, rate and credential backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNetworkTimeout is returned when an operation exceeds its bound.
	ErrNetworkTimeout = errors.New("network timeout")
	// ErrInvalidUserID is returned when a token is requested for an empty user id.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidRequest is returned for malformed registration input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEngineNotReady is returned by a zero or nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Code is the stable, client-facing identifier of an error class.
type Code string

const (
	CodeMissingCredentials  Code = "missing_credentials"
	CodeInvalidCredentials  Code = "invalid_credentials"
	CodeTokenInvalid        Code = "token_invalid"
	CodeTokenExpired        Code = "token_expired"
	CodeTokenTypeMismatch   Code = "token_type_mismatch"
	CodeRefreshTokenInvalid Code = "refresh_token_invalid"
	CodeUserNotFound        Code = "user_not_found"
	CodeUserExists          Code = "user_exists"
	CodeRateLimitExceeded   Code = "rate_limit_exceeded"
	CodeStoreUnavailable    Code = "store_unavailable"
	CodeNetworkTimeout      Code = "network_timeout"
	CodeInvalidRequest      Code = "invalid_request"
	CodeInternal            Code = "internal"
)

// RateLimitError reports a denied admission together with its retry hint.
//
// errors.Is(err, ErrRateLimitExceeded) holds for every *RateLimitError.
type RateLimitError struct {
	// Scope names the exhausted budget: "ip", "api_key" or "credentials".
	Scope      string
	RetryAfter time.Duration
	Limit      int64
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s, retry after %s", e.Scope, e.RetryAfter.Round(time.Second))
}

// Is matches ErrRateLimitExceeded.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

var codeTable = []struct {
	err  error
	code Code
}{
	{ErrMissingCredentials, CodeMissingCredentials},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrTokenTypeMismatch, CodeTokenTypeMismatch},
	{ErrTokenInvalid, CodeTokenInvalid},
	{ErrRefreshTokenInvalid, CodeRefreshTokenInvalid},
	{ErrUserNotFound, CodeUserNotFound},
	{ErrUserExists, CodeUserExists},
	{ErrRateLimitExceeded, CodeRateLimitExceeded},
	{ErrNetworkTimeout, CodeNetworkTimeout},
	{ErrStoreUnavailable, CodeStoreUnavailable},
	{ErrInvalidUserID, CodeInvalidRequest},
	{ErrInvalidRequest, CodeInvalidRequest},
}

// CodeOf maps err to its stable code. Nil maps to the empty code and
// unrecognized errors map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// StatusCode maps err to the HTTP status used by the bundled handlers.
func StatusCode(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeMissingCredentials, CodeInvalidCredentials, CodeTokenInvalid,
		CodeTokenExpired, CodeTokenTypeMismatch, CodeRefreshTokenInvalid:
		return http.StatusUnauthorized
	case CodeUserNotFound:
		return http.StatusNotFound
	case CodeUserExists:
		return http.StatusConflict
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeNetworkTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
