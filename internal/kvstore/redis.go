package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tontine/internal/namespace"
)

// DefaultKeyPrefix scopes user state keys inside a shared Redis database.
const DefaultKeyPrefix = "tontine:v1:"

const maxUpdateAttempts = 5

// RedisStore keeps user state as plain Redis strings without expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed store. An empty prefix selects
// DefaultKeyPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(ns namespace.Namespace, field string) string {
	return s.prefix + ns.Key(field)
}

// Read fetches a single field.
func (s *RedisStore) Read(ctx context.Context, ns namespace.Namespace, field string) (string, bool, error) {
	if ns.IsZero() {
		return "", false, nil
	}
	v, err := s.client.Get(ctx, s.key(ns, field)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", field, err)
	}
	return v, true, nil
}

// Write stores a single field.
func (s *RedisStore) Write(ctx context.Context, ns namespace.Namespace, field, value string) error {
	if ns.IsZero() {
		return nil
	}
	if err := s.client.Set(ctx, s.key(ns, field), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", field, err)
	}
	return nil
}

// WriteMany stores all fields inside a MULTI/EXEC block.
func (s *RedisStore) WriteMany(ctx context.Context, ns namespace.Namespace, values map[string]string) error {
	if ns.IsZero() || len(values) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, value := range values {
			pipe.Set(ctx, s.key(ns, field), value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis multi set: %w", err)
	}
	return nil
}

// Delete removes the given fields.
func (s *RedisStore) Delete(ctx context.Context, ns namespace.Namespace, fields ...string) error {
	if ns.IsZero() || len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		keys = append(keys, s.key(ns, field))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Update watches the field keys, applies fn's mutation in MULTI/EXEC and
// retries when a watched key changed before EXEC.
func (s *RedisStore) Update(ctx context.Context, ns namespace.Namespace, fields []string, fn UpdateFunc) error {
	if ns.IsZero() {
		return nil
	}
	keys := make([]string, len(fields))
	for i, field := range fields {
		keys[i] = s.key(ns, field)
	}

	txf := func(tx *redis.Tx) error {
		current := make(map[string]string, len(fields))
		if len(keys) > 0 {
			values, err := tx.MGet(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("redis mget: %w", err)
			}
			for i, v := range values {
				if str, ok := v.(string); ok {
					current[fields[i]] = str
				}
			}
		}
		m, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, field := range m.Delete {
				pipe.Del(ctx, s.key(ns, field))
			}
			for field, value := range m.Set {
				pipe.Set(ctx, s.key(ns, field), value, 0)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
