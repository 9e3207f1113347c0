package storages

import (
	"context"
	"sync"
	"time"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store/types"

	"github.com/sirupsen/logrus"
)

// MemoryStore keeps tokens in a sync.Map. Records are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	tokens sync.Map
	logger *logrus.Logger
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory token store
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	return &MemoryStore{logger: logger, now: time.Now}
}

func (m *MemoryStore) CreateToken(ctx context.Context, token *models.IssuedToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, loaded := m.tokens.LoadOrStore(token.Key, cloneToken(token)); loaded {
		return types.ErrTokenExists
	}
	m.logger.Debugf("💾 Stored %s for client %s", token.Type, token.ClientID)
	return nil
}

func (m *MemoryStore) GetToken(ctx context.Context, key string) (*models.IssuedToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, ok := m.tokens.Load(key)
	if !ok {
		return nil, types.ErrTokenNotFound
	}
	token := value.(*models.IssuedToken)
	if token.IsExpired(m.now()) {
		m.tokens.Delete(key)
		return nil, types.ErrTokenNotFound
	}
	return cloneToken(token), nil
}

func (m *MemoryStore) DeleteToken(ctx context.Context, key string) error {
	m.tokens.Delete(key)
	return nil
}

func (m *MemoryStore) CleanupExpiredTokens(ctx context.Context) (int, error) {
	now := m.now()
	removed := 0
	m.tokens.Range(func(key, value any) bool {
		if value.(*models.IssuedToken).IsExpired(now) {
			m.tokens.Delete(key)
			removed++
		}
		return ctx.Err() == nil
	})
	return removed, ctx.Err()
}

func (m *MemoryStore) CountTokens(ctx context.Context) (int, error) {
	count := 0
	m.tokens.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneToken(t *models.IssuedToken) *models.IssuedToken {
	c := *t
	c.Scopes = append([]string(nil), t.Scopes...)
	c.Audience = append([]string(nil), t.Audience...)
	c.AuthMethods = append([]string(nil), t.AuthMethods...)
	if t.ScopeResources != nil {
		c.ScopeResources = make(map[string]string, len(t.ScopeResources))
		for k, v := range t.ScopeResources {
			c.ScopeResources[k] = v
		}
	}
	if t.Claims != nil {
		c.Claims = make(map[string]any, len(t.Claims))
		for k, v := range t.Claims {
			c.Claims[k] = v
		}
	}
	return &c
}
