package models

import (
	"time"

	"github.com/ory/fosite"
)

// Grant types handled by the built-in validators
const (
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
)

// GrantRequest is a token request after client authentication
type GrantRequest struct {
	GrantType       string
	Client          *Client
	RequestedScopes fosite.Arguments
	Parameters      map[string]string
}

// Param returns a raw request parameter
func (r *GrantRequest) Param(name string) string {
	if r.Parameters == nil {
		return ""
	}
	return r.Parameters[name]
}

// GrantOutcome is the result of a successful grant validation.
// Failures are reported as errors (see NewGrantError).
type GrantOutcome struct {
	Subject          string
	AuthMethods      []string
	Scopes           fosite.Arguments
	AuthTime         time.Time
	IdentityProvider string
	Claims           map[string]any

	// RefreshHandle is the refresh token a refresh grant was made with. The
	// issuer hands it back instead of minting a new one.
	RefreshHandle string
}

// HasSubject reports whether the grant authenticated a resource owner
func (o *GrantOutcome) HasSubject() bool {
	return o.Subject != ""
}
