package models

import (
	"time"

	"github.com/ory/fosite"
)

// AccessTokenType selects how access tokens are handed to clients
type AccessTokenType string

const (
	// AccessTokenJWT issues self-contained signed tokens
	AccessTokenJWT AccessTokenType = "jwt"
	// AccessTokenReference issues opaque handles resolved through the token store
	AccessTokenReference AccessTokenType = "reference"
)

// DefaultClientClaimsPrefix is prepended to client claim names in access tokens
const DefaultClientClaimsPrefix = "client_"

// Client extends fosite.DefaultClient with the issuance settings of a registered client.
// Secrets (DefaultClient.Secret and AdditionalSecrets) are bcrypt hashes.
type Client struct {
	*fosite.DefaultClient

	Name                string          `json:"name,omitempty"`
	AdditionalSecrets   [][]byte        `json:"-"`
	Enabled             bool            `json:"enabled"`
	AllowOfflineAccess  bool            `json:"allow_offline_access"`
	AllowIdentityToken  bool            `json:"allow_identity_token"`
	AccessTokenType     AccessTokenType `json:"access_token_type"`
	AccessTokenLifetime time.Duration   `json:"access_token_lifetime"`
	Claims              map[string]any  `json:"claims,omitempty"`
	ClientClaimsPrefix  string          `json:"client_claims_prefix,omitempty"`
}

// GetHashedSecrets returns the primary secret followed by any additional secrets
func (c *Client) GetHashedSecrets() [][]byte {
	secrets := make([][]byte, 0, 1+len(c.AdditionalSecrets))
	if len(c.Secret) > 0 {
		secrets = append(secrets, c.Secret)
	}
	return append(secrets, c.AdditionalSecrets...)
}

// IsEnabled reports whether the client may authenticate
func (c *Client) IsEnabled() bool {
	return c.Enabled
}

// AllowsGrantType checks the client's registered grant types
func (c *Client) AllowsGrantType(grantType string) bool {
	return c.GrantTypes.Has(grantType)
}

// ClaimsPrefix returns the prefix for client claims, falling back to the default
func (c *Client) ClaimsPrefix() string {
	if c.ClientClaimsPrefix == "" {
		return DefaultClientClaimsPrefix
	}
	return c.ClientClaimsPrefix
}

// TokenType returns the configured access token type, JWT when unset
func (c *Client) TokenType() AccessTokenType {
	if c.AccessTokenType == "" {
		return AccessTokenJWT
	}
	return c.AccessTokenType
}
