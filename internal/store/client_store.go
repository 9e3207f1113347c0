package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/utils"
	"oauth2-tokenserver/pkg/config"

	"github.com/ory/fosite"
)

// ErrNotFound is returned by the registries for unknown ids
var ErrNotFound = errors.New("not found")

// ClientStore is the registry of configured clients
type ClientStore struct {
	clients map[string]*models.Client
	mutex   sync.RWMutex
}

// NewClientStore creates an empty client store
func NewClientStore() *ClientStore {
	return &ClientStore{
		clients: make(map[string]*models.Client),
	}
}

// LoadClientsFromConfig builds clients from configuration, hashing plaintext secrets
func LoadClientsFromConfig(cfg *config.Config) (*ClientStore, error) {
	s := NewClientStore()
	for _, cc := range cfg.Clients {
		client, err := clientFromConfig(cc, cfg.Security.HashCost)
		if err != nil {
			return nil, fmt.Errorf("failed to load client %s: %w", cc.ID, err)
		}
		s.Add(client)
	}
	return s, nil
}

func clientFromConfig(cc config.ClientConfig, hashCost int) (*models.Client, error) {
	var hashed [][]byte
	for _, secret := range cc.AllSecrets() {
		h, err := utils.EnsureHashed(secret, hashCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash secret: %w", err)
		}
		hashed = append(hashed, h)
	}

	client := &models.Client{
		DefaultClient: &fosite.DefaultClient{
			ID:         cc.ID,
			GrantTypes: fosite.Arguments(cc.GrantTypes),
			Scopes:     fosite.Arguments(cc.Scopes),
		},
		Name:                cc.Name,
		Enabled:             cc.IsEnabled(),
		AllowOfflineAccess:  cc.AllowOfflineAccess,
		AllowIdentityToken:  cc.AllowIdentityToken,
		AccessTokenType:     models.AccessTokenType(cc.AccessTokenType),
		AccessTokenLifetime: time.Duration(cc.AccessTokenLifetimeSeconds) * time.Second,
		Claims:              cc.Claims,
		ClientClaimsPrefix:  cc.ClientClaimsPrefix,
	}
	if len(hashed) > 0 {
		client.Secret = hashed[0]
		client.AdditionalSecrets = hashed[1:]
	}
	return client, nil
}

// Add registers or replaces a client
func (s *ClientStore) Add(client *models.Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[client.GetID()] = client
}

// GetClient returns the client with id or ErrNotFound
func (s *ClientStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	client, ok := s.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return client, nil
}

// LookupPrincipal lets the client registry back an authenticator
func (s *ClientStore) LookupPrincipal(ctx context.Context, id string) (models.Principal, error) {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Count returns the number of registered clients
func (s *ClientStore) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}
