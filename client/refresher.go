package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxResponseBody = 64 << 10

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type errorResponse struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

// HTTPRefresher posts refresh tokens to an authgate refresh endpoint.
type HTTPRefresher struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

// NewHTTPRefresher returns a refresher for endpoint, typically
// "https://host/auth/refresh". A nil client means http.DefaultClient.
func NewHTTPRefresher(endpoint string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRefresher{endpoint: endpoint, client: client, now: time.Now}
}

// Refresh implements Refresher. 400 and 401 map to ErrRefreshRejected, 504
// and deadline errors to ErrNetworkTimeout, anything else to ErrRefreshFailed.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (State, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return State{}, fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
		}
		return State{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return State{}, fmt.Errorf("%w: reading response: %v", ErrRefreshFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusBadRequest:
		return State{}, fmt.Errorf("%w: %s", ErrRefreshRejected, errorCode(body, resp.Status))
	case resp.StatusCode == http.StatusGatewayTimeout:
		return State{}, fmt.Errorf("%w: %s", ErrNetworkTimeout, errorCode(body, resp.Status))
	default:
		return State{}, fmt.Errorf("%w: %s", ErrRefreshFailed, errorCode(body, resp.Status))
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return State{}, fmt.Errorf("%w: decoding response: %v", ErrRefreshFailed, err)
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return State{}, fmt.Errorf("%w: incomplete token pair", ErrRefreshFailed)
	}

	return State{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    r.now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}

func errorCode(body []byte, status string) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Code != "" {
		return e.Code
	}
	return status
}
