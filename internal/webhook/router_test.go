package webhook

import (
	"testing"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestDeriveIdempotencyKey_StableForSameBooking(t *testing.T) {
	updatedAt := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	event := models.WebhookEvent{
		Channel:          models.ChannelAirbnb,
		RemotePropertyID: "listing-1",
		Booking: &models.PlatformBooking{
			ChannelBookingID: "HMABCDEF",
			UpdatedAt:        updatedAt,
		},
	}

	a := deriveIdempotencyKey(event)
	b := deriveIdempotencyKey(event)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestDeriveIdempotencyKey_ChangesWithUpdatedAt(t *testing.T) {
	base := models.WebhookEvent{
		Channel:          models.ChannelAirbnb,
		RemotePropertyID: "listing-1",
		Booking: &models.PlatformBooking{
			ChannelBookingID: "HMABCDEF",
			UpdatedAt:        time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	later := base
	laterBooking := *base.Booking
	laterBooking.UpdatedAt = base.Booking.UpdatedAt.Add(time.Hour)
	later.Booking = &laterBooking

	assert.NotEqual(t, deriveIdempotencyKey(base), deriveIdempotencyKey(later),
		"a re-delivered event with a newer updated_at should be treated as a distinct change")
}

func TestDeriveIdempotencyKey_DistinctChannels(t *testing.T) {
	a := models.WebhookEvent{Channel: models.ChannelAirbnb, RemotePropertyID: "p1"}
	b := models.WebhookEvent{Channel: models.ChannelBookingCom, RemotePropertyID: "p1"}
	assert.NotEqual(t, deriveIdempotencyKey(a), deriveIdempotencyKey(b))
}

func TestSignatureHeader(t *testing.T) {
	assert.Equal(t, "X-Airbnb-Signature", signatureHeader(models.ChannelAirbnb))
	assert.Equal(t, "X-Booking-Signature", signatureHeader(models.ChannelBookingCom))
	assert.Equal(t, "", signatureHeader(models.ChannelGoogle))
}

func TestRequiresSignature_DefaultsTrueWhenUnconfigured(t *testing.T) {
	rt := &Router{}
	assert.True(t, rt.requiresSignature(models.ChannelAirbnb), "a nil map must not silently allow unsigned webhooks")

	rt = &Router{requireSignature: map[string]bool{"booking_com": true}}
	assert.True(t, rt.requiresSignature(models.ChannelAirbnb), "a channel missing from the map must default to required")
}

func TestRequiresSignature_HonorsExplicitOptOut(t *testing.T) {
	rt := &Router{requireSignature: map[string]bool{"airbnb": false}}
	assert.False(t, rt.requiresSignature(models.ChannelAirbnb))
	assert.True(t, rt.requiresSignature(models.ChannelExpedia))
}
