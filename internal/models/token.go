package models

import (
	"time"
)

// TokenType distinguishes stored token records
type TokenType string

const (
	TokenTypeAccess  TokenType = "access_token"
	TokenTypeRefresh TokenType = "refresh_token"
)

// IssuedToken is the persisted record of an issued token. Key is the jti of a
// JWT access token or the handle of a reference or refresh token.
type IssuedToken struct {
	Key              string            `json:"key"`
	Type             TokenType         `json:"type"`
	ClientID         string            `json:"client_id"`
	Subject          string            `json:"sub,omitempty"`
	Scopes           []string          `json:"scopes"`
	ScopeResources   map[string]string `json:"scope_resources,omitempty"`
	Audience         []string          `json:"audience,omitempty"`
	AuthMethods      []string          `json:"amr,omitempty"`
	AuthTime         time.Time         `json:"auth_time"`
	IdentityProvider string            `json:"idp,omitempty"`
	Claims           map[string]any    `json:"claims,omitempty"`
	SealedClaims     string            `json:"sealed_claims,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	NotBefore        time.Time         `json:"not_before"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// IsExpired checks expiry against now
func (t *IssuedToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActiveAt reports whether the token is inside its validity window
func (t *IssuedToken) IsActiveAt(now time.Time) bool {
	return !now.Before(t.NotBefore) && !t.IsExpired(now)
}

// TTL returns the remaining lifetime, zero when expired
func (t *IssuedToken) TTL(now time.Time) time.Duration {
	if t.IsExpired(now) {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}
