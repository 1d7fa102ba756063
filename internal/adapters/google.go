package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kolibri-visions/channel-sync/internal/channelerr"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Google implements Adapter against Google's Hotel Center / Vacation
// Rentals ARI API. Writes are REST JSON; webhook authenticity is a JWT
// verified against Google's JWKS (cached, since JWKS rotates
// infrequently); payloads arrive wrapped in a pub/sub envelope; read
// endpoints may fail and must degrade to an empty map rather than
// propagate the error (spec.md §4.3, and Open Question ii's
// reconciliation treatment of that empty map).
type Google struct {
	client      *resty.Client
	ariBaseURL  string
	hotelCenterBaseURL string
	accessToken string
	jwksCache   *cache.Cache
	jwksURL     string
}

// NewGoogle builds a Google adapter. jwksCache should be shared process-
// wide (one JWKS fetch per cache TTL, not per webhook call).
func NewGoogle(client *resty.Client, ariBaseURL, hotelCenterBaseURL, accessToken, jwksURL string, jwksCache *cache.Cache) *Google {
	return &Google{
		client:             client,
		ariBaseURL:         ariBaseURL,
		hotelCenterBaseURL: hotelCenterBaseURL,
		accessToken:        accessToken,
		jwksCache:          jwksCache,
		jwksURL:            jwksURL,
	}
}

func (g *Google) Kind() models.ChannelKind { return models.ChannelGoogle }

func (g *Google) request(ctx context.Context) *resty.Request {
	return g.client.R().SetContext(ctx).SetAuthToken(g.accessToken).SetHeader("Content-Type", "application/json")
}

func (g *Google) UpdateAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow, available bool, minStay, maxStay *int) error {
	body := map[string]interface{}{
		"propertyId": remoteProperty,
		"startDate":  dateKey(w.Start),
		"endDate":    dateKey(w.End),
		"available":  available,
	}
	if minStay != nil {
		body["minimumStay"] = *minStay
	}
	if maxStay != nil {
		body["maximumStay"] = *maxStay
	}
	resp, err := g.request(ctx).SetBody(body).Post(fmt.Sprintf("%s/availability", g.ariBaseURL))
	if err != nil {
		return channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if !resp.IsSuccess() {
		return channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), parseRetryAfter(resp.Header().Get("Retry-After")))
	}
	return nil
}

// GetAvailability degrades to an empty map on failure instead of
// propagating the error, per spec.md §4.3's "read endpoints may fail and
// must degrade to empty" obligation for Google specifically.
func (g *Google) GetAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]bool, error) {
	resp, err := g.request(ctx).
		SetQueryParams(map[string]string{"propertyId": remoteProperty, "startDate": dateKey(w.Start), "endDate": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/availability", g.ariBaseURL))
	if err != nil || !resp.IsSuccess() {
		return map[string]bool{}, nil
	}
	var parsed struct {
		Availability []struct {
			Date      string `json:"date"`
			Available bool   `json:"available"`
		} `json:"availability"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return map[string]bool{}, nil
	}
	out := make(map[string]bool, len(parsed.Availability))
	for _, a := range parsed.Availability {
		out[a.Date] = a.Available
	}
	return out, nil
}

func (g *Google) UpdatePricing(ctx context.Context, remoteProperty string, date time.Time, price decimal.Decimal, currency string) error {
	return g.UpdatePricingBulk(ctx, remoteProperty, []PricingEntry{{Date: date, Price: price}}, currency)
}

func (g *Google) UpdatePricingBulk(ctx context.Context, remoteProperty string, entries []PricingEntry, currency string) error {
	rates := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		rates = append(rates, map[string]interface{}{
			"date":     dateKey(e.Date),
			"baseRate": e.Price.StringFixed(2),
			"currency": currency,
		})
	}
	resp, err := g.request(ctx).
		SetBody(map[string]interface{}{"propertyId": remoteProperty, "rates": rates}).
		Post(fmt.Sprintf("%s/rates", g.ariBaseURL))
	if err != nil {
		return channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if !resp.IsSuccess() {
		return channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), parseRetryAfter(resp.Header().Get("Retry-After")))
	}
	return nil
}

// GetPricing also degrades to empty on failure, same as GetAvailability.
func (g *Google) GetPricing(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]decimal.Decimal, error) {
	resp, err := g.request(ctx).
		SetQueryParams(map[string]string{"propertyId": remoteProperty, "startDate": dateKey(w.Start), "endDate": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/rates", g.ariBaseURL))
	if err != nil || !resp.IsSuccess() {
		return map[string]decimal.Decimal{}, nil
	}
	var parsed struct {
		Rates []struct {
			Date     string `json:"date"`
			BaseRate string `json:"baseRate"`
		} `json:"rates"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return map[string]decimal.Decimal{}, nil
	}
	out := make(map[string]decimal.Decimal, len(parsed.Rates))
	for _, r := range parsed.Rates {
		price, _ := decimal.NewFromString(r.BaseRate)
		out[r.Date] = price
	}
	return out, nil
}

func (g *Google) GetBookings(ctx context.Context, remoteProperty string, filter BookingFilter) ([]models.PlatformBooking, error) {
	q := map[string]string{"propertyId": remoteProperty}
	if filter.Since != nil {
		q["updatedSince"] = filter.Since.Format(time.RFC3339)
	}
	resp, err := g.request(ctx).SetQueryParams(q).Get(fmt.Sprintf("%s/bookings", g.hotelCenterBaseURL))
	if err != nil {
		return nil, channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if !resp.IsSuccess() {
		return nil, channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), 0)
	}
	var parsed struct {
		Bookings []googleBooking `json:"bookings"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed bookings response")
	}
	out := make([]models.PlatformBooking, 0, len(parsed.Bookings))
	for _, b := range parsed.Bookings {
		out = append(out, b.toPlatformBooking())
	}
	return out, nil
}

func (g *Google) GetBooking(ctx context.Context, remoteProperty, bookingID string) (models.PlatformBooking, error) {
	resp, err := g.request(ctx).Get(fmt.Sprintf("%s/bookings/%s", g.hotelCenterBaseURL, bookingID))
	if err != nil {
		return models.PlatformBooking{}, channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if !resp.IsSuccess() {
		return models.PlatformBooking{}, channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), 0)
	}
	var b googleBooking
	if err := json.Unmarshal(resp.Body(), &b); err != nil {
		return models.PlatformBooking{}, channelerr.New(channelerr.KindValidation, "malformed booking response")
	}
	return b.toPlatformBooking(), nil
}

// VerifyWebhookSignature is unused for Google — its webhook authenticity
// check is the bearer JWT verified in VerifyWebhookJWT instead (spec.md
// §4.3). It always returns false so a caller that accidentally routes a
// Google payload through the generic signature path fails closed.
func (g *Google) VerifyWebhookSignature(rawPayload []byte, headerValue, secret string) bool {
	return false
}

// VerifyWebhookJWT validates the bearer token Google attaches to its
// pub/sub push delivery against the cached JWKS.
func (g *Google) VerifyWebhookJWT(ctx context.Context, bearerToken string) error {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		key, ok := g.jwksCache.Get(kid)
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return key, nil
	}
	_, err := jwt.Parse(bearerToken, keyFunc, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return channelerr.New(channelerr.KindAuthentication, "invalid webhook bearer token")
	}
	return nil
}

// pubSubEnvelope is Google Pub/Sub's push delivery wrapper; message.data
// is base64-encoded JSON (spec.md §4.3/§4.5).
type pubSubEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
}

func (g *Google) ParseWebhookEvent(jsonPayload []byte) (models.WebhookEvent, error) {
	var envelope pubSubEnvelope
	if err := json.Unmarshal(jsonPayload, &envelope); err != nil {
		return models.WebhookEvent{}, channelerr.New(channelerr.KindValidation, "malformed pub/sub envelope")
	}
	decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return models.WebhookEvent{}, channelerr.New(channelerr.KindValidation, "malformed pub/sub data")
	}

	var raw struct {
		EventType  string        `json:"eventType"`
		PropertyID string        `json:"propertyId"`
		Booking    googleBooking `json:"booking"`
	}
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return models.WebhookEvent{}, channelerr.New(channelerr.KindValidation, "malformed event payload")
	}
	canonical, ok := googleEventMap[raw.EventType]
	if !ok {
		canonical = "booking.updated"
	}
	booking := raw.Booking.toPlatformBooking()
	return models.WebhookEvent{
		Channel:          models.ChannelGoogle,
		EventType:        canonical,
		RemotePropertyID: raw.PropertyID,
		Booking:          &booking,
		// defaults to message.messageId per spec.md §4.5 item 8.
		IdempotencyKey: envelope.Message.MessageID,
		ReceivedAt:     time.Now().UTC(),
	}, nil
}

var googleEventMap = map[string]string{
	"BOOKING_CREATED":   "booking.created",
	"BOOKING_UPDATED":   "booking.updated",
	"BOOKING_CANCELLED": "booking.cancelled",
}

type googleBooking struct {
	BookingID  string `json:"bookingId"`
	PropertyID string `json:"propertyId"`
	Status     string `json:"status"`
	CheckInDate  string `json:"checkInDate"`
	CheckOutDate string `json:"checkOutDate"`
	GuestName  string `json:"guestName"`
	GuestEmail string `json:"guestEmail"`
	GuestPhone string `json:"guestPhone"`
	Adults     int    `json:"adults"`
	Children   int    `json:"children"`
	TotalPrice string `json:"totalPrice"`
	Currency   string `json:"currency"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

func (b googleBooking) toPlatformBooking() models.PlatformBooking {
	checkIn, _ := time.Parse("2006-01-02", b.CheckInDate)
	checkOut, _ := time.Parse("2006-01-02", b.CheckOutDate)
	bookedAt, _ := time.Parse(time.RFC3339, b.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, b.UpdatedAt)
	price, _ := decimal.NewFromString(b.TotalPrice)
	return models.PlatformBooking{
		ChannelBookingID: b.BookingID,
		ListingID:        b.PropertyID,
		Status:           b.Status,
		CheckIn:          checkIn,
		CheckOut:         checkOut,
		GuestName:        b.GuestName,
		GuestEmail:       b.GuestEmail,
		GuestPhone:       b.GuestPhone,
		Adults:           b.Adults,
		Children:         b.Children,
		TotalPrice:       price,
		Currency:         b.Currency,
		BookedAt:         bookedAt,
		UpdatedAt:        updatedAt,
	}
}

// BuildARIFeed generates the batch-upload XML ARI feed Google also
// accepts alongside its REST API (spec.md §4.3: "also generates an XML
// ARI feed for batch upload").
func BuildARIFeed(remoteProperty string, entries []PricingEntry, currency string, availability map[string]bool) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	feed := doc.CreateElement("ARIFeed")
	feed.CreateAttr("propertyId", remoteProperty)

	rates := feed.CreateElement("Rates")
	for _, e := range entries {
		rate := rates.CreateElement("Rate")
		rate.CreateAttr("date", dateKey(e.Date))
		rate.CreateAttr("amount", e.Price.StringFixed(2))
		rate.CreateAttr("currency", currency)
	}

	avail := feed.CreateElement("Availability")
	for date, available := range availability {
		cell := avail.CreateElement("Day")
		cell.CreateAttr("date", date)
		cell.CreateAttr("available", fmt.Sprintf("%t", available))
	}

	doc.Indent(2)
	return doc.WriteToString()
}
