package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is the key prefix used when WithKeyPrefix isn't
// provided.
const DefaultRedisKeyPrefix = "aims:secret:"

// RedisSecretStore is a SecretStore backed by redis.
type RedisSecretStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ SecretStore = (*RedisSecretStore)(nil)

// NewRedisSecretStore creates a RedisSecretStore.  Supports the options
// WithKeyPrefix and WithTTL.
func NewRedisSecretStore(client redis.UniversalClient, opt ...Option) (*RedisSecretStore, error) {
	const op = "store.NewRedisSecretStore"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	opts := getRedisOpts(opt...)
	if opts.withTTL < 0 {
		return nil, fmt.Errorf("%s: ttl is negative: %w", op, ErrInvalidParameter)
	}
	return &RedisSecretStore{
		client: client,
		prefix: opts.withKeyPrefix,
		ttl:    opts.withTTL,
	}, nil
}

func (s *RedisSecretStore) key(id string) string {
	return s.prefix + id
}

// Get returns the data stored for id or ErrNotFound.
func (s *RedisSecretStore) Get(ctx context.Context, id string) ([]byte, error) {
	const op = "store.(RedisSecretStore).Get"
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%s: %q: %w", op, id, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// Put stores data for id.  With a TTL the data expires unless it's written
// again.
func (s *RedisSecretStore) Put(ctx context.Context, data []byte, id string) error {
	const op = "store.(RedisSecretStore).Put"
	if id == "" {
		return fmt.Errorf("%s: id is empty: %w", op, ErrInvalidParameter)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete removes the data stored for id.
func (s *RedisSecretStore) Delete(ctx context.Context, id string) error {
	const op = "store.(RedisSecretStore).Delete"
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
