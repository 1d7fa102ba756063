package adapters

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogle_Kind(t *testing.T) {
	assert.Equal(t, models.ChannelGoogle, NewGoogle(nil, "", "", "", "", nil).Kind())
}

func TestGoogle_VerifyWebhookSignature_AlwaysFalse(t *testing.T) {
	g := NewGoogle(nil, "", "", "", "", nil)
	assert.False(t, g.VerifyWebhookSignature([]byte("payload"), "anything", "secret"))
}

func TestGoogle_ParseWebhookEvent(t *testing.T) {
	g := NewGoogle(nil, "", "", "", "", nil)
	inner := `{
		"eventType": "BOOKING_CREATED",
		"propertyId": "prop-9",
		"booking": {
			"bookingId": "gb-1",
			"propertyId": "prop-9",
			"status": "confirmed",
			"checkInDate": "2026-10-01",
			"checkOutDate": "2026-10-04",
			"guestName": "Grace Hopper",
			"totalPrice": "300.00",
			"currency": "USD"
		}
	}`
	envelope := `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(inner)) + `","messageId":"msg-123"}}`

	event, err := g.ParseWebhookEvent([]byte(envelope))
	require.NoError(t, err)
	assert.Equal(t, models.ChannelGoogle, event.Channel)
	assert.Equal(t, "booking.created", event.EventType)
	assert.Equal(t, "prop-9", event.RemotePropertyID)
	assert.Equal(t, "msg-123", event.IdempotencyKey)
	require.NotNil(t, event.Booking)
	assert.Equal(t, "gb-1", event.Booking.ChannelBookingID)
}

func TestGoogle_ParseWebhookEvent_MalformedEnvelope(t *testing.T) {
	g := NewGoogle(nil, "", "", "", "", nil)
	_, err := g.ParseWebhookEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestBuildARIFeed(t *testing.T) {
	entries := []PricingEntry{
		{Date: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), Price: decimal.NewFromFloat(125.50)},
		{Date: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC), Price: decimal.NewFromFloat(130.00)},
	}
	availability := map[string]bool{"2026-10-01": true, "2026-10-02": false}

	feed, err := BuildARIFeed("prop-9", entries, "USD", availability)
	require.NoError(t, err)
	assert.Contains(t, feed, `propertyId="prop-9"`)
	assert.Contains(t, feed, `amount="125.50"`)
	assert.Contains(t, feed, `currency="USD"`)
	assert.Contains(t, feed, `date="2026-10-01"`)
	assert.Contains(t, feed, `available="false"`)
}
