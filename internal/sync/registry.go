// Package sync is the sync engine (spec.md §4.4): outbound fan-out,
// inbound import, polling, reconciliation, and token refresh, all
// dispatched as retryable tasks in the teacher's task-orchestration
// idiom (cf. services/distribution_service's session-oriented task
// methods). It owns CanonicalBooking, CalendarCell, SyncLog, and the
// operational fields of ChannelConnection, per spec.md §3's ownership
// rule.
package sync

import (
	"fmt"

	"github.com/kolibri-visions/channel-sync/internal/adapters"
	"github.com/kolibri-visions/channel-sync/internal/config"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
)

// AdapterFactory builds the right Adapter implementation for a connection,
// using its (already-decrypted, out of scope per spec.md §1) access
// token and the channel's configured base URL. One HTTP client is shared
// across all adapters, matching the teacher's single-client convention.
type AdapterFactory struct {
	client    *resty.Client
	creds     config.ChannelCredentials
	jwksCache *cache.Cache
}

func NewAdapterFactory(client *resty.Client, creds config.ChannelCredentials, jwksCache *cache.Cache) *AdapterFactory {
	return &AdapterFactory{client: client, creds: creds, jwksCache: jwksCache}
}

// accessToken is a placeholder for the decrypted credential lookup,
// which belongs to the out-of-scope credential store (spec.md §1); here
// it simply threads through whatever the connection's encrypted field
// currently holds, since decryption itself is not this service's concern.
func accessToken(conn *models.ChannelConnection) string {
	return conn.AccessTokenEncrypted
}

func (f *AdapterFactory) Build(conn *models.ChannelConnection) (adapters.Adapter, error) {
	token := accessToken(conn)
	switch conn.Channel {
	case models.ChannelAirbnb:
		return adapters.NewAirbnb(f.client, "https://api.airbnb.com/v2", token), nil
	case models.ChannelBookingCom:
		return adapters.NewBookingCom(f.client,
			"https://distribution-xml.booking.com/2.9/ari",
			"https://supply-xml.booking.com/reservations",
			token, token), nil
	case models.ChannelExpedia:
		return adapters.NewExpedia(f.client, "https://api.expediapartnercentral.com/v1", token), nil
	case models.ChannelFewoDirekt:
		return adapters.NewFewo(f.client, "https://api.fewo-direkt.com/v1", token), nil
	case models.ChannelGoogle:
		return adapters.NewGoogle(f.client,
			"https://travelpartner.googleapis.com/v3",
			"https://hotelcenter.googleapis.com/v1",
			token, f.creds.GoogleJWKSURL, f.jwksCache), nil
	default:
		return nil, fmt.Errorf("no adapter for channel %q", conn.Channel)
	}
}
