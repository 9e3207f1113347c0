package store

import (
	"context"
	"fmt"
	"sync"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/utils"
	"oauth2-tokenserver/pkg/config"
)

// UserStore holds the resource owners that can use the password grant
type UserStore struct {
	users map[string]*models.User
	mutex sync.RWMutex
}

// NewUserStore creates an empty user store
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*models.User)}
}

// LoadUsersFromConfig builds users from configuration, hashing plaintext passwords
func LoadUsersFromConfig(cfg *config.Config) (*UserStore, error) {
	s := NewUserStore()
	for _, uc := range cfg.Users {
		hash, err := utils.EnsureHashed(uc.Password, cfg.Security.HashCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password of %s: %w", uc.Username, err)
		}
		s.Add(&models.User{
			Subject:      uc.Subject,
			Username:     uc.Username,
			PasswordHash: hash,
			Enabled:      uc.IsEnabled(),
			Claims:       uc.Claims,
		})
	}
	return s, nil
}

// Add registers or replaces a user
func (s *UserStore) Add(user *models.User) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.users[user.Username] = user
}

// GetUserByUsername returns the user or ErrNotFound
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

// Count returns the number of users
func (s *UserStore) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.users)
}
