package authgate

import (
	"strings"
	"testing"
	"time"
)

func TestSessionRoundTrip(t *testing.T) {
	issuer := NewSessionIssuer("test-secret")

	token, err := issuer.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("expected a three-part token, got %q", token)
	}

	email, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if email != "alice@example.com" {
		t.Errorf("expected alice@example.com, got %q", email)
	}
}

func TestSessionRejectsWrongSecret(t *testing.T) {
	token, err := NewSessionIssuer("secret-a").Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := NewSessionIssuer("secret-b").Verify(token); err == nil {
		t.Error("expected verification to fail for a token signed with another key")
	}
}

func TestSessionRejectsExpiredToken(t *testing.T) {
	expired := &SessionIssuer{SecretKey: "test-secret", Issuer: "AuthGate", TTL: time.Nanosecond}
	token, err := expired.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := NewSessionIssuer("test-secret").Verify(token); err == nil {
		t.Error("expected verification to fail for an expired token")
	}
}

func TestSessionRejectsGarbage(t *testing.T) {
	issuer := NewSessionIssuer("test-secret")
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := issuer.Verify(token); err == nil {
			t.Errorf("expected verification to fail for %q", token)
		}
	}
}

func TestSessionDefaultTTL(t *testing.T) {
	issuer := NewSessionIssuer("test-secret")
	if got := issuer.ttl(); got != time.Hour {
		t.Errorf("expected 1h default TTL, got %v", got)
	}
	issuer.TTL = 30 * time.Minute
	if got := issuer.ttl(); got != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", got)
	}
}
