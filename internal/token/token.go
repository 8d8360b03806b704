// Package token issues, validates, revokes and renews signed bearer tokens.
// Token state lives in a cache ledger keyed by the token string itself:
// "valid_<kind>" while usable, "blocked_<kind>" once revoked, absent once
// expired or never issued. A token is authenticated only when its signature
// verifies and the ledger says it is valid.
package token

import (
	"fmt"
	"time"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/golang-jwt/jwt/v5"
)

type Kind string

const (
	Access  Kind = "accessToken"
	Refresh Kind = "refreshToken"
)

func (k Kind) validValue() string   { return "valid_" + string(k) }
func (k Kind) blockedValue() string { return "blocked_" + string(k) }

// Claims is the token payload. ExpiresAt is nil for non-expiring tokens.
type Claims struct {
	UserID string        `json:"id"`
	Role   internal.Role `json:"role"`
	Email  string        `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() internal.Actor {
	return internal.Actor{ID: c.UserID, Role: c.Role, Email: c.Email}
}

// Expiring reports whether the token carries an expiry claim.
func (c *Claims) Expiring() bool {
	return c.ExpiresAt != nil
}

// Remaining is the time left before expiry, relative to now.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

type policy struct {
	cfg    internal.TokenConfig
	method jwt.SigningMethod
}

func newPolicy(cfg internal.TokenConfig) (policy, error) {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil {
		return policy{}, fmt.Errorf("unknown signing algorithm %q", cfg.Algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return policy{}, fmt.Errorf("algorithm %q is not an HMAC method", cfg.Algorithm)
	}
	return policy{cfg: cfg, method: method}, nil
}

func (p policy) key(token string) string {
	return p.cfg.CachePrefix + token
}
