// Package utils provides helpers for issuing access tokens.
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken builds and signs an HS256 JWT whose subject is the owner
// ID.  The token carries sub, exp and iat claims.  Identity is normally
// issued upstream; this exists for local tooling and tests.
func NewAccessToken(secret, subject string, ttl time.Duration) (AccessToken, error) {
	if strings.TrimSpace(subject) == "" {
		return AccessToken{}, fmt.Errorf("subject is required")
	}
	if ttl <= 0 {
		return AccessToken{}, fmt.Errorf("ttl must be positive")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
