package coordination

import (
	"context"
	"fmt"
	"time"
)

// seenKeyTTL is how long an idempotency key is remembered before the same
// channel event could be reprocessed as new (spec.md §4.4/§4.5: 24h).
const seenKeyTTL = 24 * time.Hour

// MarkSeen records key as processed, returning true if it had not been
// seen before (i.e. this call is the one that should proceed). It uses
// SETNX so the check-and-mark is atomic across concurrent webhook/poll
// workers racing on the same event.
func MarkSeen(ctx context.Context, c *Client, key string) (firstSeen bool, err error) {
	ok, err := c.rdb.SetNX(ctx, seenKey(key), 1, seenKeyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("mark idempotency key %s: %w", key, err)
	}
	return ok, nil
}

// HasSeen reports whether key was already marked, without marking it.
func HasSeen(ctx context.Context, c *Client, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, seenKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("check idempotency key %s: %w", key, err)
	}
	return n > 0, nil
}

func seenKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
