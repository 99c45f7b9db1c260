package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"phaze17/dashboard/internal/models"
)

var errCorruptSession = errors.New("stored session unreadable")

// Storage persists a browser's provider session between requests.
// Load returns nil, nil when nothing is stored.
type Storage interface {
	Load(ctx context.Context, key string) (*models.AuthSession, error)
	Save(ctx context.Context, key string, session models.AuthSession) error
	Delete(ctx context.Context, key string) error
}

type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

func storageKey(key string) string {
	return "auth:browser:" + key
}

func (s *RedisStorage) Load(ctx context.Context, key string) (*models.AuthSession, error) {
	raw, err := s.client.Get(ctx, storageKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var session models.AuthSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptSession, err)
	}
	return &session, nil
}

func (s *RedisStorage) Save(ctx context.Context, key string, session models.AuthSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, storageKey(key), raw, s.ttl).Err()
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, storageKey(key)).Err()
}
