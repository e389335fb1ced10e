package rpc

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nexus-core/agentcore/internal/config"
)

// resumeClaims carries the thread id a resume token authorizes, embedded in
// the registered "sub" claim like the teacher's auth.Claims does for a user
// id.
type resumeClaims struct {
	jwt.RegisteredClaims
}

// TokenService signs and verifies the resume tokens thread/start hands back
// to a client and thread/resume later trusts. Grounded on the teacher's
// internal/auth.JWTService: same HS256-signed, registered-claims shape,
// generalized from a user id subject to a thread id subject.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService resolves cfg's secret (preferring JWTSecretEnv when set,
// per the same env-over-literal precedence internal/config.env.go applies
// elsewhere) and builds a TokenService. Returns an error if no secret is
// configured at all; resume tokens are mandatory once internal/rpc is
// wired, never an optional hardening layer.
func NewTokenService(cfg config.AuthConfig) (*TokenService, error) {
	secret := cfg.JWTSecret
	if cfg.JWTSecretEnv != "" {
		if v := os.Getenv(cfg.JWTSecretEnv); v != "" {
			secret = v
		}
	}
	if secret == "" {
		return nil, fmt.Errorf("rpc: auth.jwt_secret (or %s) must be set", cfg.JWTSecretEnv)
	}
	ttl := cfg.ResumeTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a resume token naming threadID as its subject, valid for the
// service's configured TTL.
func (s *TokenService) Issue(threadID string) (string, error) {
	now := time.Now()
	claims := resumeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   threadID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a resume token, returning the thread id it
// authorizes.
func (s *TokenService) Verify(tokenStr string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &resumeClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("rpc: invalid resume token: %w", err)
	}
	claims, ok := parsed.Claims.(*resumeClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("rpc: invalid resume token")
	}
	return claims.Subject, nil
}
