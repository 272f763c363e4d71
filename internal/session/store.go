package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

// ErrNotFound is returned when no session exists for the identity.
var ErrNotFound = errors.New("session not found")

const keyPrefix = "session:"

// Store is TTL'd keyed storage for per-conversation dialog state. The store
// is shared by every worker process; writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, identity string) (*domain.ConversationSession, error)
	Put(ctx context.Context, sess *domain.ConversationSession, ttl time.Duration) error
	Delete(ctx context.Context, identity string) error
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, identity string) (*domain.ConversationSession, error) {
	data, err := s.client.Get(ctx, keyPrefix+identity).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var sess domain.ConversationSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *redisStore) Put(ctx context.Context, sess *domain.ConversationSession, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+sess.Identity, data, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, identity string) error {
	return s.client.Del(ctx, keyPrefix+identity).Err()
}
