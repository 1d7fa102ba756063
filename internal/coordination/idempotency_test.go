package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSeen_FirstDelivery(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := &Client{rdb: rdb}

	mock.ExpectSetNX(seenKey("evt-1"), 1, seenKeyTTL).SetVal(true)

	first, err := MarkSeen(context.Background(), c, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSeen_Replay(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := &Client{rdb: rdb}

	mock.ExpectSetNX(seenKey("evt-1"), 1, seenKeyTTL).SetVal(false)

	first, err := MarkSeen(context.Background(), c, "evt-1")
	require.NoError(t, err)
	assert.False(t, first, "a replayed key must not be reported as first-seen")
}

func TestHasSeen(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := &Client{rdb: rdb}

	mock.ExpectExists(seenKey("evt-2")).SetVal(1)
	seen, err := HasSeen(context.Background(), c, "evt-2")
	require.NoError(t, err)
	assert.True(t, seen)

	mock.ExpectExists(seenKey("evt-3")).SetVal(0)
	notSeen, err := HasSeen(context.Background(), c, "evt-3")
	require.NoError(t, err)
	assert.False(t, notSeen)
}

func TestSeenKeyTTL(t *testing.T) {
	assert.Equal(t, 24*time.Hour, seenKeyTTL)
}
