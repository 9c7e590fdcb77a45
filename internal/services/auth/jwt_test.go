package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)

	token, expires, err := m.GenerateAccessToken("user-42", "sid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token == "" || expires.IsZero() {
		t.Fatal("empty token or expiry")
	}

	claims, err := m.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Fatalf("userID = %q, want user-42", claims.UserID)
	}
	if claims.SID != "sid-1" {
		t.Fatalf("sid = %q, want sid-1", claims.SID)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Minute)
	verifier := NewJWTManager("secret-b", time.Minute)

	token, _, err := issuer.GenerateAccessToken("user-42", "sid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := verifier.ParseAccessToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := m.GenerateAccessToken("user-42", "sid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := m.ParseAccessToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestGenerateAccessTokenRejectsEmptyPayload(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)

	if _, _, err := m.GenerateAccessToken("", "sid-1"); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, _, err := m.GenerateAccessToken("user-42", ""); err == nil {
		t.Fatal("expected error for empty session id")
	}
}
