package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ClaimStore implements ports.ClaimStore using Redis SET NX.
// The deposit path uses it to keep two scanner passes from crediting the
// same on-chain hash concurrently.
type ClaimStore struct {
	client *goredis.Client
	prefix string
}

// NewClaimStore creates a new Redis-backed claim store.
func NewClaimStore(client *goredis.Client) *ClaimStore {
	return &ClaimStore{
		client: client,
		prefix: "claim:",
	}
}

func (s *ClaimStore) key(namespace, key string) string {
	return s.prefix + namespace + ":" + key
}

// Claim atomically sets the key if absent.
// Returns true if this caller owns the claim, false if it is already held.
func (s *ClaimStore) Claim(ctx context.Context, namespace string, key string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetArgs(ctx, s.key(namespace, key), 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis claim: %w", err)
	}
	return result == "OK", nil
}

// Release drops a claim so a failed attempt can be retried.
func (s *ClaimStore) Release(ctx context.Context, namespace string, key string) error {
	if err := s.client.Del(ctx, s.key(namespace, key)).Err(); err != nil {
		return fmt.Errorf("redis release claim: %w", err)
	}
	return nil
}

// Held reports whether the claim is still set.
func (s *ClaimStore) Held(ctx context.Context, namespace string, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(namespace, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check claim: %w", err)
	}
	return n > 0, nil
}
