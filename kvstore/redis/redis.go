// Package redis implements core.KVStore on top of a Redis server using the
// official go-redis client. Expiry, sets and prefix scans map directly onto
// Redis primitives; the client's connection pool is shared safely across
// goroutines and processes connect independently, so no single persistent
// connection is assumed.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hupe1980/taskmesh/core"
)

// Options configure a Store constructed from an address.
type Options struct {
	Password string
	DB       int
	// ScanCount hints the batch size of SCAN iterations.
	ScanCount int64
}

// Store is a Redis backed core.KVStore.
type Store struct {
	client    *goredis.Client
	scanCount int64
}

// New wraps an existing client. The caller keeps ownership of the client's
// lifecycle.
func New(client *goredis.Client) *Store {
	return &Store{client: client, scanCount: 100}
}

// NewFromAddr dials addr (host:port) with optional overrides.
func NewFromAddr(addr string, optFns ...func(o *Options)) *Store {
	opts := Options{ScanCount: 100}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Store{client: client, scanCount: opts.ScanCount}
}

// Close releases the underlying client's pool. Only meaningful for stores
// created via NewFromAddr.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get returns the string at key, mapping redis.Nil to absence.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get", key, err)
	}
	return v, true, nil
}

// Set writes value with expiry. Redis rejects non-positive expirations, so a
// zero TTL is realized as an immediate deletion: the key is stored already
// expired per the KVStore contract.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		if _, err := s.Delete(ctx, key); err != nil {
			return err
		}
		return nil
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return storeErr("set", key, err)
	}
	return nil
}

// Delete removes key, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, storeErr("del", key, err)
	}
	return n > 0, nil
}

// Exists reports whether key currently exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, storeErr("exists", key, err)
	}
	return n > 0, nil
}

// SetAdd adds member to the set at key.
func (s *Store) SetAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return storeErr("sadd", key, err)
	}
	return nil
}

// SetRemove removes member from the set at key.
func (s *Store) SetRemove(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return storeErr("srem", key, err)
	}
	return nil
}

// SetMembers returns all members of the set at key.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, storeErr("smembers", key, err)
	}
	return members, nil
}

// SetLen returns the cardinality of the set at key.
func (s *Store) SetLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, storeErr("scard", key, err)
	}
	return n, nil
}

// Expire resets the TTL of key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, storeErr("expire", key, err)
	}
	return ok, nil
}

// ScanPrefix collects every key starting with prefix via cursor iteration.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", s.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, storeErr("scan", prefix, err)
	}
	return keys, nil
}

// storeErr wraps a client failure so callers can match core.ErrStoreUnavailable.
func storeErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", core.ErrStoreUnavailable, op, key, err)
}
