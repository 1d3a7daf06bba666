package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authgate"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// KeyFunc picks the policy and key a request is charged to. policy is the
// guard's configured default.
type KeyFunc func(r *http.Request, policy authgate.Policy) (authgate.Policy, string)

// IPFunc resolves the caller's network address.
type IPFunc func(r *http.Request) string

// KeyByIP charges the request's remote address under policy.
func KeyByIP(r *http.Request, policy authgate.Policy) (authgate.Policy, string) {
	return policy, ClientIP(r)
}

// KeyByForwardedIP charges ForwardedIP under policy. Use it only behind a
// proxy that overwrites X-Forwarded-For.
func KeyByForwardedIP(r *http.Request, policy authgate.Policy) (authgate.Policy, string) {
	return policy, ForwardedIP(r)
}

// KeyByAPIKey charges the X-API-Key header under the API-key policy. Requests
// without a key fall back to the IP policy.
func KeyByAPIKey(r *http.Request, policy authgate.Policy) (authgate.Policy, string) {
	return KeyByAPIKeyOr(KeyByIP)(r, policy)
}

// KeyByAPIKeyOr is KeyByAPIKey with fallback resolving keyless requests under
// the IP policy.
func KeyByAPIKeyOr(fallback KeyFunc) KeyFunc {
	return func(r *http.Request, _ authgate.Policy) (authgate.Policy, string) {
		if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
			return authgate.PolicyAPIKey, key
		}
		return fallback(r, authgate.PolicyIP)
	}
}

// ForwardedIP returns the first X-Forwarded-For hop, or ClientIP when the
// header is absent or unparsable.
func ForwardedIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	return ClientIP(r)
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
