package storages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store/types"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisKeyPrefix = "oauth2:token:"

// RedisStore keeps tokens as JSON values whose TTL matches the token lifetime,
// so expired records disappear without a cleanup pass.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
	now    func() time.Time
}

// NewRedisStore connects to the Redis instance at redisURL
func NewRedisStore(redisURL string, logger *logrus.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger, now: time.Now}, nil
}

func (s *RedisStore) CreateToken(ctx context.Context, token *models.IssuedToken) error {
	ttl := token.TTL(s.now())
	if ttl <= 0 {
		return fmt.Errorf("refusing to store expired token")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKeyPrefix+token.Key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if !ok {
		return types.ErrTokenExists
	}

	s.logger.Debugf("💾 [redis] Stored %s for client %s", token.Type, token.ClientID)
	return nil
}

func (s *RedisStore) GetToken(ctx context.Context, key string) (*models.IssuedToken, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token models.IssuedToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if token.IsExpired(s.now()) {
		return nil, types.ErrTokenNotFound
	}
	return &token, nil
}

func (s *RedisStore) DeleteToken(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// CleanupExpiredTokens is a no-op; Redis expires keys itself
func (s *RedisStore) CleanupExpiredTokens(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) CountTokens(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
