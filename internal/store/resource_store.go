package store

import (
	"context"
	"fmt"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/utils"
	"oauth2-tokenserver/pkg/config"
)

// ResourceStore is the registry of API resources allowed to introspect
type ResourceStore struct {
	resources map[string]*models.Resource
	order     []*models.Resource
}

// LoadResourcesFromConfig builds resources from configuration, hashing plaintext secrets
func LoadResourcesFromConfig(cfg *config.Config) (*ResourceStore, error) {
	s := &ResourceStore{resources: make(map[string]*models.Resource)}
	for _, rc := range cfg.Resources {
		res := &models.Resource{
			Name:    rc.Name,
			Enabled: rc.IsEnabled(),
			Scopes:  rc.OwnedScopes(),
		}
		for _, secret := range rc.AllSecrets() {
			h, err := utils.EnsureHashed(secret, cfg.Security.HashCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash secret of resource %s: %w", rc.Name, err)
			}
			res.Secrets = append(res.Secrets, h)
		}
		s.resources[res.Name] = res
		s.order = append(s.order, res)
	}
	return s, nil
}

// NewResourceStore wraps already built resources
func NewResourceStore(resources ...*models.Resource) *ResourceStore {
	s := &ResourceStore{resources: make(map[string]*models.Resource)}
	for _, res := range resources {
		s.resources[res.Name] = res
		s.order = append(s.order, res)
	}
	return s
}

// All returns the resources in configuration order
func (s *ResourceStore) All() []*models.Resource {
	return s.order
}

// LookupPrincipal lets the resource registry back an authenticator
func (s *ResourceStore) LookupPrincipal(ctx context.Context, id string) (models.Principal, error) {
	res, ok := s.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}
