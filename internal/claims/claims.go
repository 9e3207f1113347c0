// Package claims builds the claim sets of issued tokens and their JWT and
// introspection projections.
package claims

import (
	"strings"
	"time"

	"oauth2-tokenserver/internal/catalog"
	"oauth2-tokenserver/internal/models"

	"github.com/google/uuid"
)

// AccessTokenClaims is the canonical claim set of an access token. The JWT
// payload, the stored record and the introspection response are all derived from it.
type AccessTokenClaims struct {
	Issuer           string
	Audience         []string
	Subject          string
	ClientID         string
	Scopes           []string
	AuthMethods      []string
	IdentityProvider string
	AuthTime         time.Time
	IssuedAt         time.Time
	NotBefore        time.Time
	ExpiresAt        time.Time
	JTI              string
	// Extra holds prefixed client claims
	Extra map[string]any
}

// Assembler turns a successful grant into claims
type Assembler struct {
	Issuer                string
	Catalog               *catalog.Catalog
	AccessTokenLifetime   time.Duration
	IdentityTokenLifetime time.Duration
	newID                 func() string
}

// NewAssembler creates an assembler issuing uuid jti values
func NewAssembler(issuer string, cat *catalog.Catalog, accessLifetime, identityLifetime time.Duration) *Assembler {
	return &Assembler{
		Issuer:                issuer,
		Catalog:               cat,
		AccessTokenLifetime:   accessLifetime,
		IdentityTokenLifetime: identityLifetime,
		newID:                 uuid.NewString,
	}
}

// Lifetime returns the access token lifetime for client
func (a *Assembler) Lifetime(client *models.Client) time.Duration {
	if client.AccessTokenLifetime > 0 {
		return client.AccessTokenLifetime
	}
	return a.AccessTokenLifetime
}

// Assemble builds the access token claims for a validated grant. Subject-bound
// claims are only set when the grant authenticated a resource owner.
func (a *Assembler) Assemble(client *models.Client, outcome *models.GrantOutcome, now time.Time) *AccessTokenClaims {
	now = now.Truncate(time.Second)
	scopes := []string(outcome.Scopes)

	c := &AccessTokenClaims{
		Issuer:    a.Issuer,
		Audience:  a.Catalog.Audience(scopes),
		ClientID:  client.GetID(),
		Scopes:    append([]string(nil), scopes...),
		IssuedAt:  now,
		NotBefore: now,
		ExpiresAt: now.Add(a.Lifetime(client)),
		JTI:       a.newID(),
	}

	if outcome.HasSubject() {
		c.Subject = outcome.Subject
		c.AuthMethods = append([]string(nil), outcome.AuthMethods...)
		c.IdentityProvider = outcome.IdentityProvider
		c.AuthTime = outcome.AuthTime.Truncate(time.Second)
		if c.AuthTime.IsZero() {
			c.AuthTime = now
		}
	}

	if len(client.Claims) > 0 {
		prefix := client.ClaimsPrefix()
		c.Extra = make(map[string]any, len(client.Claims))
		for name, value := range client.Claims {
			c.Extra[prefix+name] = value
		}
	}

	return c
}

// JWT returns the payload of a signed access token
func (c *AccessTokenClaims) JWT() map[string]interface{} {
	out := c.common()
	out["scope"] = c.Scopes
	return out
}

// Introspection returns the claims shown to a resource. scope holds only the
// visible scopes, space delimited.
func (c *AccessTokenClaims) Introspection(visible []string) map[string]any {
	out := c.common()
	out["scope"] = strings.Join(visible, " ")
	return out
}

func (c *AccessTokenClaims) common() map[string]interface{} {
	out := map[string]interface{}{
		"iss":       c.Issuer,
		"client_id": c.ClientID,
		"iat":       c.IssuedAt.Unix(),
		"nbf":       c.NotBefore.Unix(),
		"exp":       c.ExpiresAt.Unix(),
		"jti":       c.JTI,
	}
	switch len(c.Audience) {
	case 0:
	case 1:
		out["aud"] = c.Audience[0]
	default:
		out["aud"] = c.Audience
	}
	if c.Subject != "" {
		out["sub"] = c.Subject
		out["amr"] = c.AuthMethods
		out["idp"] = c.IdentityProvider
		out["auth_time"] = c.AuthTime.Unix()
	}
	for name, value := range c.Extra {
		if _, taken := out[name]; !taken && name != "scope" {
			out[name] = value
		}
	}
	return out
}

// Record converts the claims into a store record under key
func (c *AccessTokenClaims) Record(key string, cat *catalog.Catalog) *models.IssuedToken {
	return &models.IssuedToken{
		Key:              key,
		Type:             models.TokenTypeAccess,
		ClientID:         c.ClientID,
		Subject:          c.Subject,
		Scopes:           append([]string(nil), c.Scopes...),
		ScopeResources:   cat.ScopeResources(c.Scopes),
		Audience:         append([]string(nil), c.Audience...),
		AuthMethods:      append([]string(nil), c.AuthMethods...),
		AuthTime:         c.AuthTime,
		IdentityProvider: c.IdentityProvider,
		Claims:           c.Extra,
		CreatedAt:        c.IssuedAt,
		NotBefore:        c.NotBefore,
		ExpiresAt:        c.ExpiresAt,
	}
}

// FromRecord rebuilds the claims of a stored access token
func FromRecord(issuer string, record *models.IssuedToken) *AccessTokenClaims {
	return &AccessTokenClaims{
		Issuer:           issuer,
		Audience:         record.Audience,
		Subject:          record.Subject,
		ClientID:         record.ClientID,
		Scopes:           record.Scopes,
		AuthMethods:      record.AuthMethods,
		IdentityProvider: record.IdentityProvider,
		AuthTime:         record.AuthTime,
		IssuedAt:         record.CreatedAt,
		NotBefore:        record.NotBefore,
		ExpiresAt:        record.ExpiresAt,
		JTI:              record.Key,
		Extra:            record.Claims,
	}
}

// AssembleIdentity builds the payload of an identity token for client
func (a *Assembler) AssembleIdentity(client *models.Client, outcome *models.GrantOutcome, now time.Time) map[string]interface{} {
	now = now.Truncate(time.Second)
	authTime := outcome.AuthTime
	if authTime.IsZero() {
		authTime = now
	}

	out := map[string]interface{}{
		"iss":       a.Issuer,
		"aud":       client.GetID(),
		"sub":       outcome.Subject,
		"iat":       now.Unix(),
		"nbf":       now.Unix(),
		"exp":       now.Add(a.IdentityTokenLifetime).Unix(),
		"auth_time": authTime.Unix(),
		"amr":       outcome.AuthMethods,
		"idp":       outcome.IdentityProvider,
	}
	for name, value := range outcome.Claims {
		if _, taken := out[name]; !taken {
			out[name] = value
		}
	}
	return out
}

// RefreshRecord is the store record of a refresh token for a validated grant
func (a *Assembler) RefreshRecord(handle string, client *models.Client, outcome *models.GrantOutcome, now time.Time, lifetime time.Duration) *models.IssuedToken {
	now = now.Truncate(time.Second)
	scopes := []string(outcome.Scopes)
	return &models.IssuedToken{
		Key:              handle,
		Type:             models.TokenTypeRefresh,
		ClientID:         client.GetID(),
		Subject:          outcome.Subject,
		Scopes:           append([]string(nil), scopes...),
		ScopeResources:   a.Catalog.ScopeResources(scopes),
		Audience:         a.Catalog.Audience(scopes),
		AuthMethods:      append([]string(nil), outcome.AuthMethods...),
		AuthTime:         outcome.AuthTime,
		IdentityProvider: outcome.IdentityProvider,
		Claims:           outcome.Claims,
		CreatedAt:        now,
		NotBefore:        now,
		ExpiresAt:        now.Add(lifetime),
	}
}
