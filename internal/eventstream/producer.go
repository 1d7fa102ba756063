package eventstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Producer appends events to pms:events, the same stream Consumer reads
// from (spec.md §4.6's "asynchronously emit booking.confirmed on the
// event stream" and §4.6's cancellation path). It is a thin XADD wrapper,
// matching the teacher's pattern of a small struct around *redis.Client
// rather than a dedicated broker SDK.
type Producer struct {
	rdb *redis.Client
}

func NewProducer(rdb *redis.Client) *Producer {
	return &Producer{rdb: rdb}
}

// Emit appends a typed event for tenantID carrying payload (marshaled to
// JSON), to be consumed by Consumer.Tick and dispatched to the outbound
// handlers.
func (p *Producer) Emit(ctx context.Context, eventType, tenantID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{
			"type":      eventType,
			"tenant_id": tenantID,
			"payload":   body,
		},
	}).Err()
}
