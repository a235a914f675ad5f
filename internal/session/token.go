package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Failure modes mirror the teacher's internal/auth/jwt.Service validation:
// a session signer with no secret, or a secret too weak to resist
// brute-forcing, refuses to start rather than mint insecure tokens.
var (
	ErrEmptySessionSecret = errors.New("session: jwt secret cannot be empty")
	ErrWeakSessionSecret  = errors.New("session: jwt secret must be at least 32 characters")
)

const defaultTokenTTL = 24 * time.Hour

// sessionClaims is the JWT payload behind the wire-level mcp-session-id: a
// signed envelope around the storage row's internal id and owning bundle,
// so a forged or garbage id fast-rejects before it ever reaches the
// session store (SPEC_FULL.md §4.9).
type sessionClaims struct {
	SessionID string `json:"session_id"`
	BundleID  string `json:"bundle_id"`
	jwt.RegisteredClaims
}

// tokenSigner mints and verifies mcp-session-id JWTs, grounded on the
// teacher's internal/auth/jwt.Service (HS256, RegisteredClaims, an
// HMAC-method-checking keyfunc on verify).
type tokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func newTokenSigner(secret, issuer string, ttl time.Duration) (*tokenSigner, error) {
	if secret == "" {
		return nil, ErrEmptySessionSecret
	}
	if len(secret) < 32 {
		return nil, ErrWeakSessionSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &tokenSigner{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

func (s *tokenSigner) mint(sessionID, bundleID string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		SessionID: sessionID,
		BundleID:  bundleID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *tokenSigner) verify(tokenString string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("session: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("session: token missing session_id claim")
	}
	return claims, nil
}
