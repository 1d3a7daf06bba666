package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newHSManager(t *testing.T, now func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	m := newHSManager(t, nil)

	for _, typ := range []TokenType{TypeAccess, TypeRefresh} {
		token, issued, err := m.Issue(typ, "user-1", "sid-1", "jti-1")
		if err != nil {
			t.Fatalf("issue %s: %v", typ, err)
		}
		claims, err := m.Parse(token, typ)
		if err != nil {
			t.Fatalf("parse %s: %v", typ, err)
		}
		if claims.Subject != "user-1" || claims.SessionID != "sid-1" || claims.ID != "jti-1" || claims.Type != typ {
			t.Fatalf("unexpected claims %+v", claims)
		}
		if !claims.ExpiresAt.Time.Equal(issued.ExpiresAt.Time) {
			t.Fatalf("exp drifted: %v vs %v", claims.ExpiresAt, issued.ExpiresAt)
		}
	}
}

func TestParseTypeMismatch(t *testing.T) {
	m := newHSManager(t, nil)

	access, _, err := m.Issue(TypeAccess, "user-1", "sid-1", "a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	refresh, _, err := m.Issue(TypeRefresh, "user-1", "sid-1", "r")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Parse(access, TypeRefresh); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Fatalf("expected ErrTokenTypeMismatch for access-as-refresh, got %v", err)
	}
	if _, err := m.Parse(refresh, TypeAccess); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Fatalf("expected ErrTokenTypeMismatch for refresh-as-access, got %v", err)
	}
}

func TestParseExpired(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	issuer := newHSManager(t, func() time.Time { return issuedAt })
	verifier := newHSManager(t, nil)

	token, _, err := issuer.Issue(TypeAccess, "user-1", "sid-1", "a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Parse(token, TypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	// expiry wins over type mismatch
	if _, err := verifier.Parse(token, TypeRefresh); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired before type check, got %v", err)
	}
}

func TestParseExpiresExactlyAtBoundary(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	current := base
	m := newHSManager(t, func() time.Time { return current })

	token, _, err := m.Issue(TypeAccess, "user-1", "sid-1", "a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	current = base.Add(15*time.Minute - time.Second)
	if _, err := m.Parse(token, TypeAccess); err != nil {
		t.Fatalf("expected valid just before exp: %v", err)
	}
	current = base.Add(15 * time.Minute)
	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at exp, got %v", err)
	}
}

func TestParseRejectsTamperedAndForeignTokens(t *testing.T) {
	m := newHSManager(t, nil)
	token, _, err := m.Issue(TypeAccess, "user-1", "sid-1", "a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := m.Parse(tampered, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}

	other, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	foreign, _, err := other.Issue(TypeAccess, "user-1", "sid-1", "a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(foreign, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign key, got %v", err)
	}

	for _, garbage := range []string{"", "not.a.jwt", "a.b"} {
		if _, err := m.Parse(garbage, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", garbage, err)
		}
	}
}

func TestParseRejectsMissingType(t *testing.T) {
	m := newHSManager(t, nil)
	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		ID:        "a",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid without typ, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		ID:        "a",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestParseIssuerAudience(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authgate",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, _, err := m.Issue(TypeAccess, "user-1", "sid-1", "a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token, TypeAccess); err != nil {
		t.Fatalf("expected valid token: %v", err)
	}

	wrongIssuer := Claims{Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		ID:        "a",
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	bad, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer).SignedString(priv)
	if _, err := m.Parse(bad, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong issuer to fail, got %v", err)
	}

	wrongAudience := wrongIssuer
	wrongAudience.Issuer = "authgate"
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	bad, _ = gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience).SignedString(priv)
	if _, err := m.Parse(bad, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong audience to fail, got %v", err)
	}

	withinLeeway := wrongAudience
	withinLeeway.Audience = gjwt.ClaimStrings{"api"}
	withinLeeway.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-15 * time.Second))
	withinLeeway.IssuedAt = gjwt.NewNumericDate(time.Now().Add(-time.Minute))
	ok, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, withinLeeway).SignedString(priv)
	if _, err := m.Parse(ok, TypeAccess); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
}

func TestParseKeyRotationByKid(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, priv2 := newEdKeys(t)

	oldSigner, err := NewManager(Config{
		AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519,
		PrivateKey: priv1, PublicKey: pub1, KeyID: "k1",
	})
	if err != nil {
		t.Fatalf("old signer: %v", err)
	}
	rotated, err := NewManager(Config{
		AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519,
		PrivateKey: priv2, KeyID: "k2",
		VerifyKeys: map[string][]byte{"k1": pub1, "k2": pub2},
	})
	if err != nil {
		t.Fatalf("rotated manager: %v", err)
	}

	oldToken, _, err := oldSigner.Issue(TypeAccess, "user-1", "sid-1", "a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := rotated.Parse(oldToken, TypeAccess); err != nil {
		t.Fatalf("expected token signed with retired key to verify: %v", err)
	}

	newToken, _, err := rotated.Issue(TypeAccess, "user-1", "sid-1", "b")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := oldSigner.Parse(newToken, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected unknown kid failure, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodHS256, PrivateKey: testSecret}},
		{"refresh shorter than access", Config{AccessTTL: time.Hour, RefreshTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: testSecret}},
		{"short secret", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")}},
		{"unknown method", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: "rs256"}},
		{"excess leeway", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: time.Hour}},
		{"ed25519 without public key", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}
