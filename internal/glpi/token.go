package glpi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const externalSessionKey = "external-session"

// TokenStore caches the remote session token. The cached token is shared by
// all workers calling the ticketing system.
type TokenStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// ErrNoToken is returned when no session token is cached.
var ErrNoToken = errors.New("no cached session token")

type redisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore stores the token under the shared `external-session` key.
func NewRedisTokenStore(client *redis.Client) TokenStore {
	return &redisTokenStore{client: client}
}

func (s *redisTokenStore) Get(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, externalSessionKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoToken
		}
		return "", err
	}
	return token, nil
}

func (s *redisTokenStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	return s.client.Set(ctx, externalSessionKey, token, ttl).Err()
}

func (s *redisTokenStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, externalSessionKey).Err()
}

// MemoryTokenStore is a process-local TokenStore for tests.
type MemoryTokenStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || time.Now().After(s.expiresAt) {
		return "", ErrNoToken
	}
	return s.token, nil
}

func (s *MemoryTokenStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = time.Now().Add(ttl)
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
