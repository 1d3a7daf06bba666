package grpcgate

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func newTestEngine(t *testing.T, ipLimit int64) *authgate.Engine {
	t.Helper()
	cfg := authgate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.RateLimit.IP = authgate.LimitConfig{Limit: ipLimit, Window: time.Minute}

	engine, err := authgate.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return engine
}

func callContext(token string) context.Context {
	ctx := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 50051},
	})
	if token != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", "Bearer "+token))
	}
	return ctx
}

var info = &grpc.UnaryServerInfo{FullMethod: "/authgate.v1.Profile/Get"}

func TestInterceptorAdmitsValidToken(t *testing.T) {
	engine := newTestEngine(t, 10)
	pair, err := engine.GenerateTokens(context.Background(), "u1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	interceptor := UnaryServerInterceptor(engine, authgate.PolicyIP)
	resp, err := interceptor(callContext(pair.AccessToken), "req", info, func(ctx context.Context, req any) (any, error) {
		p, ok := authgate.PrincipalFromContext(ctx)
		if !ok || p.UserID != "u1" {
			t.Fatalf("expected principal u1, got %+v", p)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("unexpected resp %v", resp)
	}
}

func TestInterceptorMissingToken(t *testing.T) {
	engine := newTestEngine(t, 10)
	interceptor := UnaryServerInterceptor(engine, authgate.PolicyIP)

	_, err := interceptor(callContext(""), nil, info, func(context.Context, any) (any, error) {
		t.Fatal("handler should not be called without a token")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != string(authgate.CodeMissingCredentials) {
		t.Fatalf("unexpected message %q", status.Convert(err).Message())
	}
}

func TestInterceptorRateLimited(t *testing.T) {
	engine := newTestEngine(t, 1)
	interceptor := UnaryServerInterceptor(engine, authgate.PolicyIP, WithPublicMethods(info.FullMethod))
	handler := func(context.Context, any) (any, error) { return "ok", nil }

	if _, err := interceptor(callContext(""), nil, info, handler); err != nil {
		t.Fatalf("public method should pass without token: %v", err)
	}
	_, err := interceptor(callContext(""), nil, info, handler)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", status.Code(err))
	}
}

func TestInterceptorNilEngine(t *testing.T) {
	interceptor := UnaryServerInterceptor(nil, authgate.PolicyIP)
	_, err := interceptor(callContext(""), nil, info, func(context.Context, any) (any, error) {
		return nil, nil
	})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", status.Code(err))
	}
}

func TestKeyByAPIKey(t *testing.T) {
	ctx := metadata.NewIncomingContext(callContext(""), metadata.Pairs("x-api-key", "ak_abc"))
	if p, k := KeyByAPIKey(ctx, authgate.PolicyIP); p != authgate.PolicyAPIKey || k != "ak_abc" {
		t.Fatalf("unexpected key %v %q", p, k)
	}
	if p, k := KeyByAPIKey(callContext(""), authgate.PolicyAPIKey); p != authgate.PolicyIP || k != "192.0.2.10" {
		t.Fatalf("expected peer fallback, got %v %q", p, k)
	}
}

func TestInterceptorForgedAPIKeysSpendPeerBudget(t *testing.T) {
	engine := newTestEngine(t, 2)
	interceptor := UnaryServerInterceptor(engine, authgate.PolicyIP,
		WithKeyFunc(KeyByAPIKey), WithPublicMethods(info.FullMethod))
	handler := func(context.Context, any) (any, error) { return "ok", nil }

	var exhausted int
	for i := 0; i < 6; i++ {
		ctx := metadata.NewIncomingContext(callContext(""), metadata.Pairs("x-api-key", "forged-"+strconv.Itoa(i)))
		if _, err := interceptor(ctx, nil, info, handler); status.Code(err) == codes.ResourceExhausted {
			exhausted++
		}
	}
	if exhausted != 4 {
		t.Fatalf("expected 4 calls exhausted by the peer budget, got %d", exhausted)
	}
}
