package internal

import "testing"

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != sid {
		t.Fatal("session id changed across encode/parse")
	}
	if _, err := ParseSessionID("short"); err == nil {
		t.Fatal("expected size error")
	}
}

func TestNewAPIKeyShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		key, err := NewAPIKey()
		if err != nil {
			t.Fatalf("new api key: %v", err)
		}
		if !IsAPIKey(key) {
			t.Fatalf("malformed key %q", key)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = struct{}{}
	}
	for _, bad := range []string{"", "ak_", "xx_" + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if IsAPIKey(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestHashKeyStable(t *testing.T) {
	if HashKey("a") != HashKey("a") || HashKey("a") == HashKey("b") {
		t.Fatal("hash must be deterministic and distinguish inputs")
	}
	if len(HashKey("a")) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(HashKey("a")))
	}
}
