// Package catalog maps scopes to the resources that own them. A Catalog is
// built once at startup and shared read-only by issuance and introspection.
package catalog

import (
	"fmt"

	"oauth2-tokenserver/internal/models"
)

// Standard scopes with protocol meaning
const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

// Catalog is the immutable scope ownership table
type Catalog struct {
	owners    map[string]string
	resources map[string]*models.Resource
	order     []*models.Resource
	identity  map[string]struct{}
}

// New builds a catalog. A scope may be owned by one resource only, and
// identity scopes may not collide with resource scopes.
func New(resources []*models.Resource, identityScopes []string) (*Catalog, error) {
	c := &Catalog{
		owners:    make(map[string]string),
		resources: make(map[string]*models.Resource, len(resources)),
		identity:  make(map[string]struct{}, len(identityScopes)),
	}

	for _, scope := range identityScopes {
		c.identity[scope] = struct{}{}
	}

	for _, res := range resources {
		if res.Name == "" {
			return nil, fmt.Errorf("resource name is required")
		}
		if _, dup := c.resources[res.Name]; dup {
			return nil, fmt.Errorf("duplicate resource %q", res.Name)
		}
		c.resources[res.Name] = res
		c.order = append(c.order, res)

		for _, scope := range res.Scopes {
			if owner, taken := c.owners[scope]; taken {
				return nil, fmt.Errorf("scope %q is owned by both %q and %q", scope, owner, res.Name)
			}
			if _, ok := c.identity[scope]; ok {
				return nil, fmt.Errorf("scope %q of resource %q is also an identity scope", scope, res.Name)
			}
			if scope == ScopeOfflineAccess {
				return nil, fmt.Errorf("resource %q may not own %s", res.Name, ScopeOfflineAccess)
			}
			c.owners[scope] = res.Name
		}
	}

	return c, nil
}

// Owner returns the resource owning scope
func (c *Catalog) Owner(scope string) (string, bool) {
	owner, ok := c.owners[scope]
	return owner, ok
}

// IsIdentityScope reports whether scope is an identity scope
func (c *Catalog) IsIdentityScope(scope string) bool {
	_, ok := c.identity[scope]
	return ok
}

// Known reports whether scope can be requested at all
func (c *Catalog) Known(scope string) bool {
	if scope == ScopeOfflineAccess {
		return true
	}
	if c.IsIdentityScope(scope) {
		return true
	}
	_, ok := c.owners[scope]
	return ok
}

// Resource looks up a resource by name
func (c *Catalog) Resource(name string) (*models.Resource, bool) {
	res, ok := c.resources[name]
	return res, ok
}

// Resources returns all resources in registration order
func (c *Catalog) Resources() []*models.Resource {
	out := make([]*models.Resource, len(c.order))
	copy(out, c.order)
	return out
}

// Audience returns the owning resources of scopes in first-seen order
func (c *Catalog) Audience(scopes []string) []string {
	var audience []string
	seen := make(map[string]struct{})
	for _, scope := range scopes {
		owner, ok := c.owners[scope]
		if !ok {
			continue
		}
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		audience = append(audience, owner)
	}
	return audience
}

// ScopeResources maps each resource scope in scopes to its owner
func (c *Catalog) ScopeResources(scopes []string) map[string]string {
	out := make(map[string]string)
	for _, scope := range scopes {
		if owner, ok := c.owners[scope]; ok {
			out[scope] = owner
		}
	}
	return out
}

// Visible filters scopes down to those owned by resource, keeping order
func (c *Catalog) Visible(resource string, scopes []string) []string {
	var visible []string
	for _, scope := range scopes {
		if c.owners[scope] == resource {
			visible = append(visible, scope)
		}
	}
	return visible
}
