package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"oauth2-tokenserver/internal/store/storages"
	"oauth2-tokenserver/internal/store/types"
	"oauth2-tokenserver/pkg/config"

	"github.com/sirupsen/logrus"
)

// NewTokenStore opens the token store backend selected in the configuration,
// wrapping it with claim encryption when an encryption key is configured.
func NewTokenStore(cfg *config.Config, logger *logrus.Logger) (types.TokenStore, error) {
	var (
		backend types.TokenStore
		err     error
	)

	switch cfg.Database.Type {
	case "memory":
		backend = storages.NewMemoryStore(logger)
	case "sqlite":
		backend, err = storages.NewSQLiteStore(cfg.Database.Path, logger)
	case "postgres":
		backend, err = storages.NewPostgresStore(cfg.Database.URL, logger)
	case "redis":
		backend, err = storages.NewRedisStore(cfg.Database.RedisURL, logger)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s token store: %w", cfg.Database.Type, err)
	}
	logger.Infof("✅ Token store: %s", cfg.Database.Type)

	if cfg.Security.EncryptionKey == "" {
		return backend, nil
	}

	key, err := base64.StdEncoding.DecodeString(cfg.Security.EncryptionKey)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	logger.Info("🔐 Token claims are encrypted at rest")
	return NewEncryptedTokenStore(backend, NewSecretManager(key)), nil
}

// RunCleanup removes expired tokens every interval until ctx is done
func RunCleanup(ctx context.Context, tokens types.TokenStore, interval time.Duration, logger *logrus.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := tokens.CleanupExpiredTokens(ctx)
			if err != nil {
				logger.Warnf("⚠️ Token cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				logger.Debugf("🧹 Removed %d expired tokens", removed)
			}
		}
	}
}
