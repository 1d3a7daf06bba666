package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/internal/rate"
)

func TestAdmissionClassesAreIndependent(t *testing.T) {
	a, err := NewAdmission(rate.NewMemoryBackend(), AdmissionConfig{
		IP:     rate.Policy{Limit: 3, Window: time.Minute},
		APIKey: rate.Policy{Limit: 1, Window: time.Minute},
	})
	if err != nil {
		t.Fatalf("new admission: %v", err)
	}
	ctx := context.Background()

	res, err := a.Admit(ctx, ClassAPIKey, "ak_secret", 1)
	if err != nil || !res.Allowed {
		t.Fatalf("expected first api key request admitted: %+v %v", res, err)
	}
	res, _ = a.Admit(ctx, ClassAPIKey, "ak_secret", 1)
	if res.Allowed {
		t.Fatal("expected api key budget exhausted")
	}

	// the same string under the IP class has its own window
	res, _ = a.Admit(ctx, ClassIP, "ak_secret", 1)
	if !res.Allowed || res.Remaining != 2 {
		t.Fatalf("expected independent ip budget, got %+v", res)
	}

	if a.Policy(ClassAPIKey).Limit != 1 || a.Policy(ClassIP).Prefix != "rl:ip:" {
		t.Fatalf("unexpected policies %+v %+v", a.Policy(ClassAPIKey), a.Policy(ClassIP))
	}
}

func TestAdmissionNilAdmits(t *testing.T) {
	var a *Admission
	res, err := a.Admit(context.Background(), ClassIP, "1.2.3.4", 1)
	if err != nil || !res.Allowed {
		t.Fatalf("nil admission must admit, got %+v %v", res, err)
	}
}

func TestCredentialLimiterIdentifierNormalized(t *testing.T) {
	l, err := NewCredentialLimiter(rate.NewMemoryBackend(), CredentialConfig{
		Identifier: rate.Policy{Name: "login_identifier", Limit: 2, Window: time.Minute},
	})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()

	if _, err := l.Enforce(ctx, "Alice@Example.com", "10.0.0.1"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if _, err := l.Enforce(ctx, " alice@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	res, err := l.Enforce(ctx, "ALICE@example.com", "10.0.0.3")
	if !errors.Is(err, ErrCredentialRateLimited) {
		t.Fatalf("expected ErrCredentialRateLimited, got %v", err)
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("expected retry hint, got %+v", res)
	}
}

func TestCredentialLimiterIP(t *testing.T) {
	l, err := NewCredentialLimiter(rate.NewMemoryBackend(), CredentialConfig{
		IP: rate.Policy{Name: "login_ip", Limit: 1, Window: time.Minute},
	})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()

	if _, err := l.Enforce(ctx, "a@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if _, err := l.Enforce(ctx, "b@example.com", "10.0.0.1"); !errors.Is(err, ErrCredentialRateLimited) {
		t.Fatalf("expected ip throttle, got %v", err)
	}
	if _, err := l.Enforce(ctx, "b@example.com", ""); err != nil {
		t.Fatalf("empty ip must skip ip policy: %v", err)
	}
}

func TestCredentialLimiterFailuresOnly(t *testing.T) {
	l, err := NewCredentialLimiter(rate.NewMemoryBackend(), CredentialConfig{
		Identifier: rate.Policy{Name: "login_identifier", Limit: 2, Window: time.Minute},
		IP:         rate.Policy{Name: "login_ip", Limit: 3, Window: time.Minute},
	})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := l.Check(ctx, "alice@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("check %d must not charge: %v", i, err)
		}
	}

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "Alice@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if _, err := l.Check(ctx, "alice@example.com", "10.0.0.2"); !errors.Is(err, ErrCredentialRateLimited) {
		t.Fatalf("expected identifier throttle, got %v", err)
	}

	if err := l.Reset(ctx, " ALICE@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := l.Check(ctx, "alice@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("expected identifier budget restored: %v", err)
	}

	// reset leaves the address budget charged
	if err := l.RecordFailure(ctx, "bob@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if _, err := l.Check(ctx, "carol@example.com", "10.0.0.1"); !errors.Is(err, ErrCredentialRateLimited) {
		t.Fatalf("expected ip throttle, got %v", err)
	}
}
