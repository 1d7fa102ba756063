package adapters

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/channelerr"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const airbnbPageSize = 50

// Airbnb implements Adapter against Airbnb's REST JSON API (spec.md
// §4.3's Airbnb obligations: REST JSON, HMAC-SHA256 webhook signatures,
// page size 50 on bookings).
type Airbnb struct {
	client      *resty.Client
	baseURL     string
	accessToken string
}

// NewAirbnb builds an Airbnb adapter bound to one connection's token.
func NewAirbnb(client *resty.Client, baseURL, accessToken string) *Airbnb {
	return &Airbnb{client: client, baseURL: baseURL, accessToken: accessToken}
}

func (a *Airbnb) Kind() models.ChannelKind { return models.ChannelAirbnb }

func (a *Airbnb) request(ctx context.Context) *resty.Request {
	return a.client.R().
		SetContext(ctx).
		SetAuthToken(a.accessToken).
		SetHeader("Content-Type", "application/json")
}

func (a *Airbnb) translate(resp *resty.Response, err error) error {
	if err != nil {
		return channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if resp.IsSuccess() {
		return nil
	}
	retryAfter := parseRetryAfter(resp.Header().Get("Retry-After"))
	return channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), retryAfter)
}

func (a *Airbnb) UpdateAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow, available bool, minStay, maxStay *int) error {
	body := map[string]interface{}{
		"start_date": dateKey(w.Start),
		"end_date":   dateKey(w.End),
		"available":  available,
	}
	if minStay != nil {
		body["min_nights"] = *minStay
	}
	if maxStay != nil {
		body["max_nights"] = *maxStay
	}
	resp, err := a.request(ctx).
		SetBody(body).
		Put(fmt.Sprintf("%s/listings/%s/calendar", a.baseURL, remoteProperty))
	return a.translate(resp, err)
}

func (a *Airbnb) GetAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]bool, error) {
	resp, err := a.request(ctx).
		SetQueryParams(map[string]string{"start_date": dateKey(w.Start), "end_date": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/listings/%s/calendar", a.baseURL, remoteProperty))
	if err := a.translate(resp, err); err != nil {
		return nil, err
	}
	var parsed struct {
		Days []struct {
			Date      string `json:"date"`
			Available bool   `json:"available"`
		} `json:"days"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed calendar response")
	}
	out := make(map[string]bool, len(parsed.Days))
	for _, d := range parsed.Days {
		out[d.Date] = d.Available
	}
	return out, nil
}

func (a *Airbnb) UpdatePricing(ctx context.Context, remoteProperty string, date time.Time, price decimal.Decimal, currency string) error {
	return a.UpdatePricingBulk(ctx, remoteProperty, []PricingEntry{{Date: date, Price: price}}, currency)
}

func (a *Airbnb) UpdatePricingBulk(ctx context.Context, remoteProperty string, entries []PricingEntry, currency string) error {
	days := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		days = append(days, map[string]interface{}{
			"date":  dateKey(e.Date),
			"price": e.Price.StringFixed(2),
		})
	}
	resp, err := a.request(ctx).
		SetBody(map[string]interface{}{"currency": currency, "days": days}).
		Put(fmt.Sprintf("%s/listings/%s/calendar/pricing", a.baseURL, remoteProperty))
	return a.translate(resp, err)
}

func (a *Airbnb) GetPricing(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]decimal.Decimal, error) {
	resp, err := a.request(ctx).
		SetQueryParams(map[string]string{"start_date": dateKey(w.Start), "end_date": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/listings/%s/calendar/pricing", a.baseURL, remoteProperty))
	if err := a.translate(resp, err); err != nil {
		return nil, err
	}
	var parsed struct {
		Days []struct {
			Date  string `json:"date"`
			Price string `json:"price"`
		} `json:"days"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed pricing response")
	}
	out := make(map[string]decimal.Decimal, len(parsed.Days))
	for _, d := range parsed.Days {
		price, _ := decimal.NewFromString(d.Price)
		out[d.Date] = price
	}
	return out, nil
}

func (a *Airbnb) GetBookings(ctx context.Context, remoteProperty string, filter BookingFilter) ([]models.PlatformBooking, error) {
	var out []models.PlatformBooking
	page := 1
	for {
		q := map[string]string{
			"listing_id": remoteProperty,
			"page":       fmt.Sprintf("%d", page),
			"page_size":  fmt.Sprintf("%d", airbnbPageSize),
		}
		if filter.Since != nil {
			q["updated_since"] = filter.Since.Format(time.RFC3339)
		}
		resp, err := a.request(ctx).SetQueryParams(q).Get(fmt.Sprintf("%s/reservations", a.baseURL))
		if err := a.translate(resp, err); err != nil {
			return nil, err
		}
		var parsed struct {
			Reservations []airbnbReservation `json:"reservations"`
			HasMore      bool                `json:"has_more"`
		}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return nil, channelerr.New(channelerr.KindValidation, "malformed reservations response")
		}
		for _, r := range parsed.Reservations {
			out = append(out, r.toPlatformBooking())
		}
		if !parsed.HasMore || len(parsed.Reservations) == 0 {
			break
		}
		page++
	}
	return out, nil
}

func (a *Airbnb) GetBooking(ctx context.Context, remoteProperty, bookingID string) (models.PlatformBooking, error) {
	resp, err := a.request(ctx).Get(fmt.Sprintf("%s/reservations/%s", a.baseURL, bookingID))
	if err := a.translate(resp, err); err != nil {
		return models.PlatformBooking{}, err
	}
	var r airbnbReservation
	if err := json.Unmarshal(resp.Body(), &r); err != nil {
		return models.PlatformBooking{}, channelerr.New(channelerr.KindValidation, "malformed reservation response")
	}
	return r.toPlatformBooking(), nil
}

// VerifyWebhookSignature compares the HMAC-SHA256 of rawPayload against
// headerValue using a constant-time comparison (spec.md §4.3 item 7).
func (a *Airbnb) VerifyWebhookSignature(rawPayload []byte, headerValue, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(headerValue)) == 1
}

func (a *Airbnb) ParseWebhookEvent(jsonPayload []byte) (models.WebhookEvent, error) {
	var raw struct {
		Event       string          `json:"event"`
		ReservationID string        `json:"reservation_id"`
		ListingID   string          `json:"listing_id"`
		Timestamp   time.Time       `json:"timestamp"`
		Reservation airbnbReservation `json:"reservation"`
	}
	if err := json.Unmarshal(jsonPayload, &raw); err != nil {
		return models.WebhookEvent{}, channelerr.New(channelerr.KindValidation, "malformed webhook payload")
	}
	canonical, ok := airbnbEventMap[raw.Event]
	if !ok {
		canonical = "booking.updated"
	}
	booking := raw.Reservation.toPlatformBooking()
	return models.WebhookEvent{
		Channel:          models.ChannelAirbnb,
		EventType:        canonical,
		RemotePropertyID: raw.ListingID,
		Booking:          &booking,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

var airbnbEventMap = map[string]string{
	"reservation.created":    "booking.created",
	"reservation.accepted":   "booking.confirmed",
	"reservation.updated":    "booking.updated",
	"reservation.cancelled":  "booking.cancelled",
	"reservation.declined":   "booking.declined",
	"reservation.checked_out": "booking.checked_out",
}

type airbnbReservation struct {
	ID         string `json:"id"`
	ListingID  string `json:"listing_id"`
	Status     string `json:"status"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	GuestFirstName string `json:"guest_first_name"`
	GuestLastName  string `json:"guest_last_name"`
	GuestEmail string `json:"guest_email"`
	GuestPhone string `json:"guest_phone"`
	Adults     int    `json:"adults"`
	Children   int    `json:"children"`
	Infants    int    `json:"infants"`
	TotalPrice string `json:"total_price"`
	Currency   string `json:"currency"`
	ConfirmedAt string `json:"confirmed_at"`
	UpdatedAt  string `json:"updated_at"`
	GuestNote  string `json:"guest_note"`
	GuestID    string `json:"guest_id"`
}

func (r airbnbReservation) toPlatformBooking() models.PlatformBooking {
	checkIn, _ := time.Parse("2006-01-02", r.StartDate)
	checkOut, _ := time.Parse("2006-01-02", r.EndDate)
	bookedAt, _ := time.Parse(time.RFC3339, r.ConfirmedAt)
	updatedAt, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	price, _ := decimal.NewFromString(r.TotalPrice)
	return models.PlatformBooking{
		ChannelBookingID: r.ID,
		ListingID:        r.ListingID,
		Status:           r.Status,
		CheckIn:          checkIn,
		CheckOut:         checkOut,
		GuestName:        fmt.Sprintf("%s %s", r.GuestFirstName, r.GuestLastName),
		GuestEmail:       r.GuestEmail,
		GuestPhone:       r.GuestPhone,
		Adults:           r.Adults,
		Children:         r.Children,
		Infants:          r.Infants,
		TotalPrice:       price,
		Currency:         r.Currency,
		BookedAt:         bookedAt,
		UpdatedAt:        updatedAt,
		SpecialRequests:  r.GuestNote,
		ChannelGuestID:   r.GuestID,
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
