package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds our token, so
// a lock that expired and was re-acquired elsewhere is never released by
// the old owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock serializes adaptation runs per learner across processes using
// SET NX with a TTL. The TTL guards against a crashed holder wedging the
// learner forever.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock creates a run lock over the given cache.
func NewRunLock(c *Cache, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RunLock{client: c.Client, ttl: ttl}
}

func lockKey(learnerID string) string {
	return "adaptation:run:" + learnerID
}

// TryLock acquires the learner's run lock without blocking. The returned
// release func is safe to call after the TTL has expired.
func (l *RunLock) TryLock(ctx context.Context, learnerID string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(learnerID), token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring run lock for %s: %w", learnerID, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{lockKey(learnerID)}, token).Err(); err != nil {
			slog.Error("failed to release run lock", "learner_id", learnerID, "error", err)
		}
	}
	return release, true, nil
}
