package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/adapters"
	"github.com/kolibri-visions/channel-sync/internal/eventstream"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/kolibri-visions/channel-sync/internal/sync"
	"github.com/shopspring/decimal"
)

// localChangePayload is the JSON shape the property-management system
// publishes onto pms:events for each of the four outbound event types
// (spec.md §4.4's event handlers).
type localChangePayload struct {
	PropertyID string    `json:"property_id"`
	Source     string    `json:"source,omitempty"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Available  bool      `json:"available"`
	Currency   string    `json:"currency,omitempty"`
	Rates      []struct {
		Date  time.Time       `json:"date"`
		Price decimal.Decimal `json:"price"`
	} `json:"rates,omitempty"`
}

// dispatchEvent decodes one pms:events message and routes it to the
// matching sync-engine outbound handler (spec.md §4.4's event stream
// consumer: "decode type, tenant_id, payload, dispatch to one of the
// four outbound handlers").
func (s *Scheduler) dispatchEvent(ctx context.Context, ev eventstream.Event) error {
	var payload localChangePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}

	bookingEvent := sync.BookingEvent{
		PropertyID: payload.PropertyID,
		Source:     models.ChannelKind(payload.Source),
		CheckIn:    payload.CheckIn,
		CheckOut:   payload.CheckOut,
		Available:  payload.Available,
	}

	switch ev.Type {
	case "booking.confirmed":
		return s.engine.OnBookingConfirmed(ctx, bookingEvent)
	case "booking.cancelled":
		return s.engine.OnBookingCancelled(ctx, bookingEvent)
	case "availability.updated":
		return s.engine.OnAvailabilityUpdated(ctx, bookingEvent)
	case "pricing.updated":
		entries := make([]adapters.PricingEntry, len(payload.Rates))
		for i, r := range payload.Rates {
			entries[i] = adapters.PricingEntry{Date: r.Date, Price: r.Price}
		}
		return s.engine.OnPricingUpdated(ctx, sync.PricingEvent{
			PropertyID: payload.PropertyID,
			Source:     models.ChannelKind(payload.Source),
			Rates:      entries,
			Currency:   payload.Currency,
		})
	default:
		return nil
	}
}
