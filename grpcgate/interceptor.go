package grpcgate

import (
	"context"
	"math"
	"net"
	"strconv"

	"github.com/MrEthical07/authgate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	authorizationKey = "authorization"
	apiKeyKey        = "x-api-key"
)

// KeyFunc picks the policy and key a call is charged to.
type KeyFunc func(ctx context.Context, policy authgate.Policy) (authgate.Policy, string)

type options struct {
	key    KeyFunc
	public map[string]struct{}
}

// Option configures UnaryServerInterceptor.
type Option func(*options)

// WithKeyFunc replaces KeyByPeer.
func WithKeyFunc(fn KeyFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.key = fn
		}
	}
}

// WithPublicMethods lists full method names that are rate limited but not
// authenticated.
func WithPublicMethods(methods ...string) Option {
	return func(o *options) {
		for _, m := range methods {
			o.public[m] = struct{}{}
		}
	}
}

// UnaryServerInterceptor gates every unary call under policy. Admitted calls
// see the principal through authgate.PrincipalFromContext.
func UnaryServerInterceptor(engine *authgate.Engine, policy authgate.Policy, opts ...Option) grpc.UnaryServerInterceptor {
	o := options{key: KeyByPeer, public: map[string]struct{}{}}
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if engine == nil {
			return nil, status.Error(codes.Unavailable, "auth engine not ready")
		}

		_, public := o.public[info.FullMethod]
		p, key := o.key(ctx, policy)
		addr := peerIP(ctx)
		d := engine.Gate(ctx, authgate.GateRequest{
			Policy:        p,
			Key:           key,
			Authorization: firstMetadata(ctx, authorizationKey),
			Address:       addr,
			SkipAuth:      public,
		})

		switch d.Kind {
		case authgate.RateLimited:
			secs := int64(math.Ceil(d.RetryAfter().Seconds()))
			if secs < 1 {
				secs = 1
			}
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", strconv.FormatInt(secs, 10)))
			return nil, status.Error(codes.ResourceExhausted, string(authgate.CodeRateLimitExceeded))
		case authgate.Unauthenticated:
			return nil, status.Error(codes.Unauthenticated, string(authgate.CodeOf(d.Err)))
		case authgate.Failed:
			return nil, status.Error(codes.Unavailable, string(authgate.CodeOf(d.Err)))
		}

		ctx = authgate.WithClientIP(ctx, addr)
		if d.Principal.UserID != "" {
			ctx = authgate.WithPrincipal(ctx, d.Principal)
		}
		return handler(ctx, req)
	}
}

// KeyByPeer charges the caller's network address under policy.
func KeyByPeer(ctx context.Context, policy authgate.Policy) (authgate.Policy, string) {
	return policy, peerIP(ctx)
}

// KeyByAPIKey charges the "x-api-key" metadata value under the API-key
// policy, falling back to the peer address. Calls with a key are charged to
// the peer address as well.
func KeyByAPIKey(ctx context.Context, _ authgate.Policy) (authgate.Policy, string) {
	if key := firstMetadata(ctx, apiKeyKey); key != "" {
		return authgate.PolicyAPIKey, key
	}
	return authgate.PolicyIP, peerIP(ctx)
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}
