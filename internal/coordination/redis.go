// Package coordination wraps the Redis primitives shared by the rate
// limiter, circuit breaker, distributed lock, idempotency tracking and
// event stream (spec.md §4.1, §4.2, §4.6, §9). It follows the teacher's
// session_manager.go convention of a thin struct wrapping *redis.Client,
// constructed once at startup and passed down.
package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps the shared Redis connection used for coordination state.
// It never stores durable domain data — that lives in the relational
// store (internal/store) — only the transient control-plane state the
// sync engine needs to coordinate across workers.
type Client struct {
	rdb *redis.Client
}

// Connect opens the Redis connection used for rate limiting, circuit
// breaking, locking, idempotency keys and the event stream.
func Connect(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Raw exposes the underlying client for packages (ratelimit, circuit,
// eventstream) that need direct access to run their own Lua scripts.
func (c *Client) Raw() *redis.Client { return c.rdb }

// Close releases the connection.
func (c *Client) Close() error { return c.rdb.Close() }
