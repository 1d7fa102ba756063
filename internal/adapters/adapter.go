// Package adapters implements the five channel platform adapters
// (spec.md §4.3), each normalizing its vendor's REST/XML surface into the
// shared Adapter capability set. Adapters are stateless functions over
// credentials: no adapter holds sync-engine state, in keeping with
// spec.md §3's ownership rule.
//
// HTTP transport is shared resty client, grounded in the teacher's
// pattern of a single configured client reused across calls (see
// services/distribution_service for outbound GDS/NDC calls), rather than
// ad hoc net/http per adapter.
package adapters

import (
	"context"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/shopspring/decimal"
)

// AvailabilityWindow is the inclusive-start/exclusive-end range used by
// update_availability / get_availability (spec.md §4.3 items 1-2).
type AvailabilityWindow struct {
	Start time.Time
	End   time.Time
}

// PricingEntry is one date's price in a bulk pricing write.
type PricingEntry struct {
	Date  time.Time
	Price decimal.Decimal
}

// BookingFilter narrows get_bookings to a time window and/or status.
type BookingFilter struct {
	Since        *time.Time
	StatusFilter string
}

// Adapter is the polymorphic capability set every channel implements
// (spec.md §4.3). Dispatch is over the closed ChannelKind enum — no
// runtime inheritance, per spec.md §9.
type Adapter interface {
	Kind() models.ChannelKind

	UpdateAvailability(ctx context.Context, remoteProperty string, window AvailabilityWindow, available bool, minStay, maxStay *int) error
	GetAvailability(ctx context.Context, remoteProperty string, window AvailabilityWindow) (map[string]bool, error)

	UpdatePricing(ctx context.Context, remoteProperty string, date time.Time, price decimal.Decimal, currency string) error
	UpdatePricingBulk(ctx context.Context, remoteProperty string, entries []PricingEntry, currency string) error
	GetPricing(ctx context.Context, remoteProperty string, window AvailabilityWindow) (map[string]decimal.Decimal, error)

	GetBookings(ctx context.Context, remoteProperty string, filter BookingFilter) ([]models.PlatformBooking, error)
	GetBooking(ctx context.Context, remoteProperty, bookingID string) (models.PlatformBooking, error)

	VerifyWebhookSignature(rawPayload []byte, headerValue, secret string) bool
	ParseWebhookEvent(jsonPayload []byte) (models.WebhookEvent, error)
}

// Credentials is the per-connection opaque access material an adapter
// call needs, decrypted by the (out-of-scope) credential store before
// reaching here.
type Credentials struct {
	AccessToken string
}

// dateKey formats a date the same way across every adapter's
// map<date,...> return values, so the sync engine's diffing logic
// compares like with like.
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
