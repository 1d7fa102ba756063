package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kolibri-visions/channel-sync/internal/channelerr"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds our fencing
// token, so a lock whose lease already expired and was re-acquired by
// another holder is never released out from under them.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a held distributed lock; callers must Release it.
type Lock struct {
	key   string
	token string
	rdb   *redis.Client
}

// AcquireLock attempts to take the named lock, retrying with a short sleep
// until deadline elapses. lease bounds how long the lock is held before it
// auto-expires even if the holder crashes; deadline bounds how long the
// caller is willing to wait to acquire it (spec.md §4.6 step 2: "acquire a
// distributed lock keyed by property+date range, lease 60s, acquisition
// deadline 5s").
func AcquireLock(ctx context.Context, c *Client, key string, lease, deadline time.Duration) (*Lock, error) {
	token := uuid.New().String()
	lockKey := fmt.Sprintf("lock:%s", key)

	deadlineAt := time.Now().Add(deadline)
	for {
		ok, err := c.rdb.SetNX(ctx, lockKey, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &Lock{key: lockKey, token: token, rdb: c.rdb}, nil
		}
		if time.Now().After(deadlineAt) {
			return nil, &channelerr.LockContention{Key: key}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Release drops the lock if this Lock instance is still the current
// holder (fencing token match), otherwise it is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
