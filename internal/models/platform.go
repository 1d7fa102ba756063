package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlatformBooking is the transient, channel-native shape an adapter's
// get_bookings/get_booking/parse_webhook_event returns, before the sync
// engine normalizes it into a CanonicalBooking. It carries no internal
// identifiers, matching the dataclass shape of the original implementation
// (_examples/original_source/channel-manager/platform-adapters/base_adapter.py)
// — including guest phone and special_requests, which spec.md's own
// CanonicalBooking section omits but the original carries end to end
// (see SPEC_FULL.md Section C).
type PlatformBooking struct {
	ChannelBookingID string
	ListingID        string
	Status           string

	CheckIn  time.Time
	CheckOut time.Time

	GuestName  string
	GuestEmail string
	GuestPhone string

	Adults   int
	Children int
	Infants  int

	TotalPrice decimal.Decimal
	Currency   string

	BookedAt  time.Time
	UpdatedAt time.Time

	SpecialRequests string

	// ChannelGuestID is the channel's own guest identifier, when exposed.
	ChannelGuestID string
	// ChannelData is the raw vendor payload, kept opaque for audit/debug.
	ChannelData string
}

// WebhookEvent is the transient canonical shape produced by
// parse_webhook_event, dispatched by the ingress router before any
// database write happens (spec.md §4.5).
type WebhookEvent struct {
	Channel          ChannelKind
	EventType        string
	RemotePropertyID string
	Booking          *PlatformBooking
	IdempotencyKey   string
	ReceivedAt       time.Time
}
