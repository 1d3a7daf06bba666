package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/MrEthical07/authgate"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code       authgate.Code `json:"error_code"`
	Message    string        `json:"error_message"`
	RetryAfter int64         `json:"retry_after,omitempty"`
}

var messages = map[authgate.Code]string{
	authgate.CodeMissingCredentials:  "authentication required",
	authgate.CodeInvalidCredentials:  "invalid email or password",
	authgate.CodeTokenInvalid:        "token is invalid",
	authgate.CodeTokenExpired:        "token has expired",
	authgate.CodeTokenTypeMismatch:   "wrong token type",
	authgate.CodeRefreshTokenInvalid: "refresh token is no longer valid",
	authgate.CodeUserNotFound:        "user not found",
	authgate.CodeUserExists:          "user already exists",
	authgate.CodeRateLimitExceeded:   "too many requests",
	authgate.CodeStoreUnavailable:    "service temporarily unavailable",
	authgate.CodeNetworkTimeout:      "upstream timed out",
	authgate.CodeInvalidRequest:      "invalid request",
	authgate.CodeInternal:            "internal error",
}

// NewErrorBody builds the response body for err. Messages come from a fixed
// table so backend details never reach clients.
func NewErrorBody(err error) ErrorBody {
	code := authgate.CodeOf(err)
	body := ErrorBody{Code: code, Message: messages[code]}

	var rl *authgate.RateLimitError
	if errors.As(err, &rl) {
		body.RetryAfter = int64(math.Ceil(rl.RetryAfter.Seconds()))
		if body.RetryAfter < 1 {
			body.RetryAfter = 1
		}
	}
	return body
}

// WriteError writes err as a JSON error body with the status from
// authgate.StatusCode.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	WriteJSON(w, authgate.StatusCode(err), NewErrorBody(err))
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
