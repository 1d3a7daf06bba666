package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authgate"
)

// PrincipalFromContext returns the principal Guard attached to the request.
func PrincipalFromContext(ctx context.Context) (authgate.Principal, bool) {
	return authgate.PrincipalFromContext(ctx)
}

type options struct {
	ip IPFunc
}

// Option configures Guard and Limit.
type Option func(*options)

// WithIPFunc sets how the caller's address is resolved. The address is
// attached to the request context for credential throttling and is charged
// under the IP policy alongside any API key. Defaults to ClientIP.
func WithIPFunc(fn IPFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.ip = fn
		}
	}
}

// Guard rate limits under policy, then requires a bearer access token. The
// verified principal is available to next through PrincipalFromContext.
func Guard(engine *authgate.Engine, policy authgate.Policy, key KeyFunc, opts ...Option) func(http.Handler) http.Handler {
	return gate(engine, policy, key, false, opts)
}

// Limit rate limits under policy without looking at the Authorization header.
func Limit(engine *authgate.Engine, policy authgate.Policy, key KeyFunc, opts ...Option) func(http.Handler) http.Handler {
	return gate(engine, policy, key, true, opts)
}

func gate(engine *authgate.Engine, policy authgate.Policy, key KeyFunc, skipAuth bool, opts []Option) func(http.Handler) http.Handler {
	if key == nil {
		key = KeyByIP
	}
	o := options{ip: ClientIP}
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authgate.ErrEngineNotReady)
				return
			}

			p, k := key(r, policy)
			addr := o.ip(r)
			d := engine.Gate(r.Context(), authgate.GateRequest{
				Policy:        p,
				Key:           k,
				Authorization: r.Header.Get("Authorization"),
				Address:       addr,
				SkipAuth:      skipAuth,
			})
			if d.Kind != authgate.Failed {
				setRateLimitHeaders(w, d.Admission)
			}

			switch d.Kind {
			case authgate.RateLimited:
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(d.RetryAfter().Seconds()), 10))
				WriteError(w, d.Err)
				return
			case authgate.Unauthenticated:
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				WriteError(w, d.Err)
				return
			case authgate.Failed:
				WriteError(w, d.Err)
				return
			}

			ctx := authgate.WithClientIP(r.Context(), addr)
			if d.Principal.UserID != "" {
				ctx = authgate.WithPrincipal(ctx, d.Principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, adm authgate.Admission) {
	if adm.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(adm.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(adm.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(adm.ResetAt.Unix(), 10))
}

// retryAfterSeconds rounds up and never advertises less than one second.
func retryAfterSeconds(s float64) int64 {
	if s < 1 {
		return 1
	}
	return int64(math.Ceil(s))
}
