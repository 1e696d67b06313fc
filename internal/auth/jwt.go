// Package auth issues and verifies bearer tokens scoped to an appid, and
// provides the net/http middleware that gates the HTTP API with them.
// Grounded on the teacher's internal/auth package: an HMAC TokenService
// wrapping golang-jwt/jwt/v5, adapted from per-user identity (username,
// role) to per-tenant identity (appid, role) since this service has no
// notion of a human user — only of an appid whose groups a caller may
// touch.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role gates which pool operations a token may invoke.
type Role string

const (
	// RoleRead permits contain/batch_contain only.
	RoleRead Role = "read"
	// RoleWrite permits every operation, including insert/batch_insert.
	RoleWrite Role = "write"
	// RoleAdmin permits every operation plus config get/set.
	RoleAdmin Role = "admin"
)

// CanWrite reports whether a role may call insert/batch_insert.
func (r Role) CanWrite() bool { return r == RoleWrite || r == RoleAdmin }

// CanAdmin reports whether a role may read/write AppConfig.
func (r Role) CanAdmin() bool { return r == RoleAdmin }

// Claims holds the JWT claims for an sfp access token. AppID is stored in
// the standard "sub" (Subject) claim.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// AppID returns the subject (appid) the token is scoped to.
func (c *Claims) AppID() string { return c.Subject }

// TokenService issues and verifies JWT tokens.
type TokenService struct {
	secret   []byte
	duration time.Duration
}

// NewTokenService creates a token service with the given HMAC secret and
// token lifetime.
func NewTokenService(secret []byte, duration time.Duration) *TokenService {
	return &TokenService{secret: secret, duration: duration}
}

// Issue creates a signed JWT scoped to appid with the given role.
func (ts *TokenService) Issue(appid string, role Role) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ts.duration)

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   appid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a JWT, returning the claims if valid.
func (ts *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
