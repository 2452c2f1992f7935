package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so an
// expired lock re-acquired by another replica is left alone.
const releaseScript = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`

// Redis is a Locker shared by every process connected to the same server.
type Redis struct {
	client  redis.Cmdable
	release *redis.Script
	logger  *slog.Logger
}

// NewRedis creates a Redis-backed Locker.
func NewRedis(client redis.Cmdable, logger *slog.Logger) *Redis {
	return &Redis{
		client:  client,
		release: redis.NewScript(releaseScript),
		logger:  logger,
	}
}

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		// The pass context may already be cancelled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.release.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
			r.logger.Warn("release lock failed", "key", key, "error", err)
		}
	}, true, nil
}
