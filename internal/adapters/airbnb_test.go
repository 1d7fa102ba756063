package adapters

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAirbnb_VerifyWebhookSignature(t *testing.T) {
	a := NewAirbnb(nil, "", "")
	secret := "shh"
	payload := []byte(`{"event":"reservation.created"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, a.VerifyWebhookSignature(payload, valid, secret))
	assert.False(t, a.VerifyWebhookSignature(payload, "deadbeef", secret))
	assert.False(t, a.VerifyWebhookSignature(payload, valid, "wrong-secret"))
}

func TestAirbnb_ParseWebhookEvent(t *testing.T) {
	a := NewAirbnb(nil, "", "")
	payload := []byte(`{
		"event": "reservation.accepted",
		"listing_id": "listing-42",
		"reservation": {
			"id": "HMABCDEF",
			"listing_id": "listing-42",
			"status": "accepted",
			"start_date": "2026-09-01",
			"end_date": "2026-09-05",
			"guest_first_name": "Ada",
			"guest_last_name": "Lovelace",
			"guest_email": "ada@example.com",
			"adults": 2,
			"total_price": "450.00",
			"currency": "USD"
		}
	}`)

	event, err := a.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelAirbnb, event.Channel)
	assert.Equal(t, "booking.confirmed", event.EventType)
	assert.Equal(t, "listing-42", event.RemotePropertyID)
	require.NotNil(t, event.Booking)
	assert.Equal(t, "HMABCDEF", event.Booking.ChannelBookingID)
	assert.Equal(t, "Ada Lovelace", event.Booking.GuestName)
}

func TestAirbnb_ParseWebhookEvent_UnknownEventDefaultsToUpdated(t *testing.T) {
	a := NewAirbnb(nil, "", "")
	payload := []byte(`{"event":"reservation.something_new","listing_id":"l1","reservation":{"id":"r1"}}`)

	event, err := a.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "booking.updated", event.EventType)
}

func TestAirbnb_ParseWebhookEvent_Malformed(t *testing.T) {
	a := NewAirbnb(nil, "", "")
	_, err := a.ParseWebhookEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestAirbnb_Kind(t *testing.T) {
	assert.Equal(t, models.ChannelAirbnb, NewAirbnb(nil, "", "").Kind())
}
