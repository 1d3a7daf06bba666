package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
)

type handlers struct {
	engine *authgate.Engine
	logger *slog.Logger
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Plan     string `json:"plan,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the body of every endpoint that issues a pair.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	User   userResponse  `json:"user"`
	Tokens tokenResponse `json:"tokens"`
	APIKey string        `json:"api_key,omitempty"`
}

type apiKeyResponse struct {
	APIKey string `json:"api_key"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.Register(r.Context(), authgate.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Plan:     req.Plan,
	})
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}

	h.logger.Info("user registered", slog.String("user_id", res.User.ID), slog.String("plan", res.User.Plan))
	middleware.WriteJSON(w, http.StatusCreated, newAuthResponse(res))
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newAuthResponse(res))
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		middleware.WriteError(w, fmt.Errorf("%w: refresh_token is required", authgate.ErrInvalidRequest))
		return
	}

	pair, err := h.engine.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		middleware.WriteError(w, fmt.Errorf("%w: refresh_token is required", authgate.ErrInvalidRequest))
		return
	}

	if err := h.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, authgate.ErrMissingCredentials)
		return
	}

	user, err := h.engine.CurrentUser(r.Context(), p)
	if err != nil {
		h.fail(w, r, "me", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *handlers) rotateAPIKey(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, authgate.ErrMissingCredentials)
		return
	}

	key, err := h.engine.RotateAPIKey(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, "rotate api key", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, apiKeyResponse{APIKey: key})
}

// fail writes err and logs the server-side ones.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if status := authgate.StatusCode(err); status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("err", err),
		)
	} else {
		h.logger.Debug("request rejected", slog.String("op", op), slog.String("code", string(authgate.CodeOf(err))))
	}
	var rl *authgate.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.FormatInt(middleware.NewErrorBody(rl).RetryAfter, 10))
	}
	middleware.WriteError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, fmt.Errorf("%w: invalid request body", authgate.ErrInvalidRequest))
		return false
	}
	return true
}

func newTokenResponse(p authgate.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(p.ExpiresIn / time.Second),
	}
}

func newUserResponse(u authgate.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Plan:      u.Plan,
		Credits:   u.Credits,
		CreatedAt: u.CreatedAt,
	}
}

func newAuthResponse(res *authgate.AuthResult) authResponse {
	return authResponse{
		User:   newUserResponse(res.User),
		Tokens: newTokenResponse(res.Tokens),
		APIKey: res.APIKey,
	}
}
