package token

import (
	"testing"
	"time"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
)

func testUser() domain.User {
	return domain.User{
		ID:           42,
		Email:        "reader@example.com",
		Name:         "Reader One",
		Role:         domain.RoleReader,
		Subscription: domain.TierPremium,
		Active:       true,
	}
}

func TestIssueAndVerify(t *testing.T) {
	issuer, err := New("test-secret", Options{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	id, err := claims.UserID()
	if err != nil {
		t.Fatalf("parse subject: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected subject 42, got %d", id)
	}
	if claims.Email != "reader@example.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
	if claims.Role != string(domain.RoleReader) {
		t.Fatalf("expected role claim reader, got %q", claims.Role)
	}
	if claims.Subscription != string(domain.TierPremium) {
		t.Fatalf("expected subscription claim premium, got %q", claims.Subscription)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("", Options{}); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	if _, err := New("   ", Options{}); err == nil {
		t.Fatalf("expected blank secret to fail")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, err := New("secret-a", Options{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	other, err := New("secret-b", Options{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := other.Verify(tok); err == nil {
		t.Fatalf("expected verification with a different secret to fail")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer, err := New("test-secret", Options{TTL: time.Nanosecond, Leeway: time.Nanosecond})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := issuer.Verify(tok); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer, err := New("test-secret", Options{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := issuer.Verify(tok); err == nil {
			t.Fatalf("expected token %q to fail verification", tok)
		}
	}
}
