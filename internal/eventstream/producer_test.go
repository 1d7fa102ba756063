package eventstream

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_Emit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	p := NewProducer(rdb)

	type payload struct {
		PropertyID string `json:"property_id"`
	}
	body := []byte(`{"property_id":"prop-1"}`)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{
			"type":      "booking.confirmed",
			"tenant_id": "tenant-1",
			"payload":   body,
		},
	}).SetVal("1-0")

	err := p.Emit(context.Background(), "booking.confirmed", "tenant-1", payload{PropertyID: "prop-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProducer_Emit_MarshalError(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	p := NewProducer(rdb)

	// A channel value cannot be marshaled to JSON.
	err := p.Emit(context.Background(), "booking.confirmed", "tenant-1", make(chan int))
	assert.Error(t, err)
}
