package types

import (
	"context"
	"errors"

	"oauth2-tokenserver/internal/models"
)

var (
	// ErrTokenExists is returned when a key has already been written
	ErrTokenExists = errors.New("token already exists")
	// ErrTokenNotFound is returned for unknown or expired keys
	ErrTokenNotFound = errors.New("token not found")
)

// TokenStore persists issued tokens. Implementations must be safe for
// concurrent use and treat each key as write-once.
type TokenStore interface {
	// CreateToken atomically inserts a record; ErrTokenExists if the key is taken
	CreateToken(ctx context.Context, token *models.IssuedToken) error
	// GetToken returns the record for key or ErrTokenNotFound
	GetToken(ctx context.Context, key string) (*models.IssuedToken, error)
	// DeleteToken removes a record; deleting an unknown key is not an error
	DeleteToken(ctx context.Context, key string) error
	// CleanupExpiredTokens removes expired records and returns how many were removed
	CleanupExpiredTokens(ctx context.Context) (int, error)
	// CountTokens returns the number of stored records
	CountTokens(ctx context.Context) (int, error)
	Close() error
}
