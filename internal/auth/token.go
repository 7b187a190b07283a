// Package auth resolves and persists the bearer token the coordinator is
// handed. Token issuance lives elsewhere; this only consumes and stores.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EnvToken is the environment variable consulted before the token file.
const EnvToken = "CHOCO_ACCESS_TOKEN"

// TokenSource resolves the bearer token: explicit value first, then the
// environment, then the persisted token file.
type TokenSource struct {
	explicit string
	path     string
}

// NewTokenSource creates a source backed by the given token file path.
func NewTokenSource(path string) *TokenSource {
	return &TokenSource{path: path}
}

// WithExplicit returns a source that always yields token.
func (s *TokenSource) WithExplicit(token string) *TokenSource {
	return &TokenSource{explicit: token, path: s.path}
}

// Token returns the current bearer, or "" when none is available.
func (s *TokenSource) Token() string {
	if s.explicit != "" {
		return s.explicit
	}
	if v := os.Getenv(EnvToken); v != "" {
		return v
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Save persists the bearer to the token file.
func (s *TokenSource) Save(token string) error {
	if token == "" {
		return errors.New("refusing to persist an empty token")
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Clear removes the persisted token.
func (s *TokenSource) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// expirySkew treats tokens about to expire as already expired, so a request
// does not leave with a bearer that dies in flight.
const expirySkew = 30 * time.Second

// Expired inspects the token's exp claim without verifying the signature
// (verification is the server's job). Tokens that are not JWTs, or carry no
// exp claim, are treated as non-expiring.
func Expired(token string) bool {
	if token == "" {
		return true
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().Add(expirySkew).After(exp.Time)
}
