package token

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	tok, err := issuer.Issue(42, "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	p, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.UserID != 42 {
		t.Fatalf("expected user 42, got %d", p.UserID)
	}
	if p.Role != "student" {
		t.Fatalf("expected role student, got %q", p.Role)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := NewIssuer("secret-a", time.Hour).Issue(1, "owner")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = NewIssuer("secret-b", time.Hour).Verify(tok)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	tok, err := NewIssuer("test-secret", -time.Minute).Issue(1, "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = NewIssuer("test-secret", time.Hour).Verify(tok)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	_, err := NewIssuer("test-secret", time.Hour).Verify("not-a-token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
