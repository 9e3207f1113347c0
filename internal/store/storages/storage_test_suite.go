package storages

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store/types"
)

// StorageTestSuite runs the token store contract against any backend
type StorageTestSuite struct {
	store types.TokenStore
	name  string
}

// NewStorageTestSuite creates a test suite for a storage implementation
func NewStorageTestSuite(store types.TokenStore, name string) *StorageTestSuite {
	return &StorageTestSuite{
		store: store,
		name:  name,
	}
}

// RunAllTests executes all storage tests
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run(s.name+"/CreateAndGet", s.TestCreateAndGet)
	t.Run(s.name+"/WriteOnce", s.TestWriteOnce)
	t.Run(s.name+"/NotFound", s.TestNotFound)
	t.Run(s.name+"/Delete", s.TestDelete)
	t.Run(s.name+"/ExpiredIsNotFound", s.TestExpiredIsNotFound)
}

func newTestToken(key string, lifetime time.Duration) *models.IssuedToken {
	now := time.Now().Truncate(time.Second).UTC()
	return &models.IssuedToken{
		Key:              key,
		Type:             models.TokenTypeAccess,
		ClientID:         "client1",
		Subject:          "bob",
		Scopes:           []string{"api1", "api2"},
		ScopeResources:   map[string]string{"api1": "api1", "api2": "api2"},
		Audience:         []string{"api1", "api2"},
		AuthMethods:      []string{"password"},
		AuthTime:         now,
		IdentityProvider: "local",
		Claims:           map[string]any{"iss": "https://idsvr4", "client_id": "client1"},
		CreatedAt:        now,
		NotBefore:        now,
		ExpiresAt:        now.Add(lifetime),
	}
}

// TestCreateAndGet checks a stored record reads back unchanged
func (s *StorageTestSuite) TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	token := newTestToken(fmt.Sprintf("create-%d", time.Now().UnixNano()), time.Hour)

	if err := s.store.CreateToken(ctx, token); err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}

	got, err := s.store.GetToken(ctx, token.Key)
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}

	if got.ClientID != token.ClientID || got.Subject != token.Subject || got.Type != token.Type {
		t.Errorf("Token identity mismatch: got %+v", got)
	}
	if !reflect.DeepEqual(got.Scopes, token.Scopes) {
		t.Errorf("Scopes mismatch: expected %v, got %v", token.Scopes, got.Scopes)
	}
	if !reflect.DeepEqual(got.ScopeResources, token.ScopeResources) {
		t.Errorf("Scope resources mismatch: expected %v, got %v", token.ScopeResources, got.ScopeResources)
	}
	if !got.ExpiresAt.Equal(token.ExpiresAt) {
		t.Errorf("Expiry mismatch: expected %v, got %v", token.ExpiresAt, got.ExpiresAt)
	}
	if got.Claims["iss"] != "https://idsvr4" {
		t.Errorf("Expected iss claim to survive storage, got %v", got.Claims["iss"])
	}
}

// TestWriteOnce checks a second write to the same key is refused
func (s *StorageTestSuite) TestWriteOnce(t *testing.T) {
	ctx := context.Background()
	token := newTestToken(fmt.Sprintf("once-%d", time.Now().UnixNano()), time.Hour)

	if err := s.store.CreateToken(ctx, token); err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}

	other := newTestToken(token.Key, time.Hour)
	other.ClientID = "intruder"
	if err := s.store.CreateToken(ctx, other); !errors.Is(err, types.ErrTokenExists) {
		t.Fatalf("Expected ErrTokenExists, got %v", err)
	}

	got, err := s.store.GetToken(ctx, token.Key)
	if err != nil {
		t.Fatalf("Failed to get token: %v", err)
	}
	if got.ClientID != "client1" {
		t.Errorf("Original record was overwritten: client %s", got.ClientID)
	}
}

// TestNotFound checks unknown keys
func (s *StorageTestSuite) TestNotFound(t *testing.T) {
	if _, err := s.store.GetToken(context.Background(), "does-not-exist"); !errors.Is(err, types.ErrTokenNotFound) {
		t.Fatalf("Expected ErrTokenNotFound, got %v", err)
	}
}

// TestDelete checks records can be removed and removal is idempotent
func (s *StorageTestSuite) TestDelete(t *testing.T) {
	ctx := context.Background()
	token := newTestToken(fmt.Sprintf("delete-%d", time.Now().UnixNano()), time.Hour)

	if err := s.store.CreateToken(ctx, token); err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}
	if err := s.store.DeleteToken(ctx, token.Key); err != nil {
		t.Fatalf("Failed to delete token: %v", err)
	}
	if _, err := s.store.GetToken(ctx, token.Key); !errors.Is(err, types.ErrTokenNotFound) {
		t.Fatalf("Expected ErrTokenNotFound after delete, got %v", err)
	}
	if err := s.store.DeleteToken(ctx, token.Key); err != nil {
		t.Fatalf("Second delete should not fail: %v", err)
	}
}

// TestExpiredIsNotFound checks that expired records are never returned
func (s *StorageTestSuite) TestExpiredIsNotFound(t *testing.T) {
	ctx := context.Background()
	token := newTestToken(fmt.Sprintf("expiring-%d", time.Now().UnixNano()), 2*time.Second)

	if err := s.store.CreateToken(ctx, token); err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}

	time.Sleep(3 * time.Second)

	if _, err := s.store.GetToken(ctx, token.Key); !errors.Is(err, types.ErrTokenNotFound) {
		t.Fatalf("Expected expired token to be not found, got %v", err)
	}
	if _, err := s.store.CleanupExpiredTokens(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
}
