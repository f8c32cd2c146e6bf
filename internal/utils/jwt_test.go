package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "U1", 15*time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub != "U1" {
		t.Fatalf("sub = %q, err = %v", sub, err)
	}
	if d := time.Until(tok.Exp); d <= 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("expiry in %v", d)
	}
}

func TestNewAccessTokenRejectsBadInput(t *testing.T) {
	if _, err := NewAccessToken("s", " ", time.Minute); err == nil {
		t.Fatal("expected error for empty subject")
	}
	if _, err := NewAccessToken("s", "U1", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
