package client

import (
	"io"
	"net/http"
)

// Transport attaches the session's access token and, on a 401, refreshes
// through the Coordinator and replays the request once. A second 401 is
// returned to the caller as is.
//
// Requests with a body are replayed only when GetBody is set, which
// http.NewRequest does for the common body types.
type Transport struct {
	Base        http.RoundTripper
	Coordinator *Coordinator
}

// NewTransport returns a Transport over base. A nil base means
// http.DefaultTransport.
func NewTransport(base http.RoundTripper, c *Coordinator) *Transport {
	return &Transport{Base: base, Coordinator: c}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	state, err := t.Coordinator.Current(req.Context())
	if err != nil {
		return nil, err
	}

	first := req.Clone(req.Context())
	if state.AccessToken != "" {
		first.Header.Set("Authorization", "Bearer "+state.AccessToken)
	}
	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if state.Empty() || !replayable(req) {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	resp.Body.Close()

	fresh, err := t.Coordinator.EnsureFreshToken(req.Context(), state.AccessToken)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+fresh.AccessToken)
	return t.base().RoundTrip(retry)
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
