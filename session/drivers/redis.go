package drivers

import (
	"context"
	"errors"
	"time"

	"github.com/creastat/chatstore/session"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for snapshots
	snapshotKeyPrefix = "chatstore:snapshot:"
	// Default TTL for snapshot keys (30 days)
	defaultTTL = 30 * 24 * time.Hour
)

// RedisStore implements session.Store using Redis with optimistic locking.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	codec  *session.Codec
}

// NewRedisStore creates a new Redis-based snapshot store.
func NewRedisStore(client *redis.Client, ttl time.Duration, codec *session.Codec) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		codec:  codec,
	}
}

// Load implements session.Store.
// Refreshes TTL on every read.
func (s *RedisStore) Load(ctx context.Context, key string) (*session.Snapshot, error) {
	k := s.key(key)
	val, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap, err := s.codec.Decode(val)
	if err != nil {
		return nil, err
	}

	_ = s.client.Expire(ctx, k, s.ttl).Err()

	return snap, nil
}

// Save implements session.Store.
// Uses WATCH/MULTI/EXEC so a concurrent writer between the version check and
// the write aborts the transaction.
func (s *RedisStore) Save(ctx context.Context, key string, snap *session.Snapshot) error {
	k := s.key(key)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var stored int64
		val, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			existing, err := s.codec.Decode(val)
			if err != nil {
				return err
			}
			stored = existing.Version
		}

		if stored != snap.Version {
			return session.ErrVersionConflict
		}

		next := snap.Clone()
		next.Version++
		next.SavedAt = time.Now()

		data, err := s.codec.Encode(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		snap.Version = next.Version
		snap.SavedAt = next.SavedAt
		return nil
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return session.ErrVersionConflict
	}
	return err
}

// Delete implements session.Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Close implements session.Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a snapshot key.
func (s *RedisStore) key(key string) string {
	return snapshotKeyPrefix + key
}
