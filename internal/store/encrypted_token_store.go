package store

import (
	"context"
	"encoding/json"
	"fmt"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store/types"
)

// EncryptedTokenStore seals token claims before they reach the backend.
// Keys, expiry and ownership stay in clear so backends can index them.
type EncryptedTokenStore struct {
	types.TokenStore
	secrets *SecretManager
}

// NewEncryptedTokenStore wraps backend
func NewEncryptedTokenStore(backend types.TokenStore, secrets *SecretManager) *EncryptedTokenStore {
	return &EncryptedTokenStore{TokenStore: backend, secrets: secrets}
}

func (s *EncryptedTokenStore) CreateToken(ctx context.Context, token *models.IssuedToken) error {
	plain, err := json.Marshal(token.Claims)
	if err != nil {
		return fmt.Errorf("failed to marshal claims: %w", err)
	}
	sealed, err := s.secrets.Seal(plain, []byte(token.Key))
	if err != nil {
		return fmt.Errorf("failed to seal claims: %w", err)
	}

	stored := *token
	stored.Claims = nil
	stored.SealedClaims = sealed
	return s.TokenStore.CreateToken(ctx, &stored)
}

func (s *EncryptedTokenStore) GetToken(ctx context.Context, key string) (*models.IssuedToken, error) {
	token, err := s.TokenStore.GetToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if token.SealedClaims == "" {
		return token, nil
	}

	plain, err := s.secrets.Open(token.SealedClaims, []byte(token.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to open claims: %w", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(plain, &claims); err != nil {
		return nil, fmt.Errorf("failed to unmarshal claims: %w", err)
	}
	token.Claims = claims
	token.SealedClaims = ""
	return token, nil
}
