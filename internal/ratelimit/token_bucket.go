package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketSrc string

var tokenBucketScript = redis.NewScript(tokenBucketSrc)

// TokenBucket is the burst-friendly alternative limiter used where a
// channel's quota is better modeled as a refillable allowance than a
// fixed window (spec.md §4.1's token-bucket variant).
type TokenBucket struct {
	rdb      *redis.Client
	capacity float64
	// ratePerMS is tokens added per millisecond.
	ratePerMS float64
}

// NewTokenBucket builds a bucket that holds capacity tokens and refills
// at refillRate tokens per second.
func NewTokenBucket(rdb *redis.Client, capacity float64, refillRate float64) *TokenBucket {
	return &TokenBucket{rdb: rdb, capacity: capacity, ratePerMS: refillRate / 1000.0}
}

// Take attempts to consume a single token for channel, atomically
// refilling first.
func (b *TokenBucket) Take(ctx context.Context, channel string) (bool, error) {
	key := fmt.Sprintf("tokenbucket:%s", channel)
	res, err := tokenBucketScript.Run(ctx, b.rdb, []string{key},
		time.Now().UnixMilli(), b.capacity, b.ratePerMS,
	).Result()
	if err != nil {
		return false, fmt.Errorf("token bucket script for %s: %w", channel, err)
	}
	fields, ok := res.([]interface{})
	if !ok || len(fields) != 2 {
		return false, fmt.Errorf("unexpected token bucket result shape for %s", channel)
	}
	return fields[0].(int64) == 1, nil
}
