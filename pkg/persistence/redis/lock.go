// Package redis provides a Redis-backed workflow lock repository. Lock keys
// carry a TTL so locks held by crashed workers expire on their own.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "eduflow:lock:"

// LockRepository implements persistence.LockRepository on Redis using
// SETNX with expiry.
type LockRepository struct {
	client *goredis.Client
}

// NewLockRepository connects to the Redis instance at url
// (redis://[user:password@]host:port/db) and verifies the connection.
func NewLockRepository(url string) (*LockRepository, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &LockRepository{client: client}, nil
}

func (r *LockRepository) key(workflowID string) string {
	return lockKeyPrefix + workflowID
}

func (r *LockRepository) Acquire(ctx context.Context, workflowID, ownerID string, ttl time.Duration) (bool, error) {
	key := r.key(workflowID)

	taken, err := r.client.SetNX(ctx, key, ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for workflow %s: %w", workflowID, err)
	}

	if taken {
		return true, nil
	}

	holder, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// The lock expired between SETNX and GET. Try once more.
			taken, err = r.client.SetNX(ctx, key, ownerID, ttl).Result()
			if err != nil {
				return false, fmt.Errorf("failed to acquire lock for workflow %s: %w", workflowID, err)
			}

			return taken, nil
		}

		return false, fmt.Errorf("failed to inspect lock for workflow %s: %w", workflowID, err)
	}

	if holder != ownerID {
		return false, nil
	}

	// Reentrant acquire by the current holder refreshes the TTL.
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to refresh lock for workflow %s: %w", workflowID, err)
	}

	return true, nil
}

// Release deletes the lock if ownerID still holds it. The holder check and
// the delete are two calls, not one atomic operation.
func (r *LockRepository) Release(ctx context.Context, workflowID, ownerID string) error {
	key := r.key(workflowID)

	holder, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to inspect lock for workflow %s: %w", workflowID, err)
	}

	if holder != ownerID {
		return nil
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release lock for workflow %s: %w", workflowID, err)
	}

	return nil
}

// ReleaseExpired is a no-op: Redis evicts expired lock keys natively.
func (r *LockRepository) ReleaseExpired(_ context.Context) (int, error) {
	return 0, nil
}

func (r *LockRepository) Close(_ context.Context) error {
	return r.client.Close()
}
