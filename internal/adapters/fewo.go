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

// Fewo implements Adapter against FeWo-direkt/Vrbo's REST JSON API:
// cursor pagination on bookings, plus the two instant-booking actions
// AcceptInstantBooking and DeclineBooking that the other four channels
// don't expose (spec.md §4.3).
type Fewo struct {
	client      *resty.Client
	baseURL     string
	accessToken string
}

func NewFewo(client *resty.Client, baseURL, accessToken string) *Fewo {
	return &Fewo{client: client, baseURL: baseURL, accessToken: accessToken}
}

func (f *Fewo) Kind() models.ChannelKind { return models.ChannelFewoDirekt }

func (f *Fewo) request(ctx context.Context) *resty.Request {
	return f.client.R().SetContext(ctx).SetAuthToken(f.accessToken).SetHeader("Content-Type", "application/json")
}

func (f *Fewo) translate(resp *resty.Response, err error) error {
	if err != nil {
		return channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if resp.IsSuccess() {
		return nil
	}
	return channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), parseRetryAfter(resp.Header().Get("Retry-After")))
}

func (f *Fewo) UpdateAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow, available bool, minStay, maxStay *int) error {
	body := map[string]interface{}{
		"unitId":    remoteProperty,
		"startDate": dateKey(w.Start),
		"endDate":   dateKey(w.End),
		"available": available,
	}
	if minStay != nil {
		body["minStay"] = *minStay
	}
	if maxStay != nil {
		body["maxStay"] = *maxStay
	}
	resp, err := f.request(ctx).SetBody(body).Put(fmt.Sprintf("%s/units/%s/calendar", f.baseURL, remoteProperty))
	return f.translate(resp, err)
}

func (f *Fewo) GetAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]bool, error) {
	resp, err := f.request(ctx).
		SetQueryParams(map[string]string{"startDate": dateKey(w.Start), "endDate": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/units/%s/calendar", f.baseURL, remoteProperty))
	if err := f.translate(resp, err); err != nil {
		return nil, err
	}
	var parsed struct {
		Calendar []struct {
			Date      string `json:"date"`
			Available bool   `json:"available"`
		} `json:"calendar"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed calendar response")
	}
	out := make(map[string]bool, len(parsed.Calendar))
	for _, c := range parsed.Calendar {
		out[c.Date] = c.Available
	}
	return out, nil
}

func (f *Fewo) UpdatePricing(ctx context.Context, remoteProperty string, date time.Time, price decimal.Decimal, currency string) error {
	return f.UpdatePricingBulk(ctx, remoteProperty, []PricingEntry{{Date: date, Price: price}}, currency)
}

func (f *Fewo) UpdatePricingBulk(ctx context.Context, remoteProperty string, entries []PricingEntry, currency string) error {
	rates := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		rates = append(rates, map[string]interface{}{
			"date":     dateKey(e.Date),
			"nightlyRate": e.Price.StringFixed(2),
		})
	}
	resp, err := f.request(ctx).
		SetBody(map[string]interface{}{"currency": currency, "rates": rates}).
		Put(fmt.Sprintf("%s/units/%s/rates", f.baseURL, remoteProperty))
	return f.translate(resp, err)
}

func (f *Fewo) GetPricing(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]decimal.Decimal, error) {
	resp, err := f.request(ctx).
		SetQueryParams(map[string]string{"startDate": dateKey(w.Start), "endDate": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/units/%s/rates", f.baseURL, remoteProperty))
	if err := f.translate(resp, err); err != nil {
		return nil, err
	}
	var parsed struct {
		Rates []struct {
			Date        string `json:"date"`
			NightlyRate string `json:"nightlyRate"`
		} `json:"rates"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed rates response")
	}
	out := make(map[string]decimal.Decimal, len(parsed.Rates))
	for _, r := range parsed.Rates {
		price, _ := decimal.NewFromString(r.NightlyRate)
		out[r.Date] = price
	}
	return out, nil
}

func (f *Fewo) GetBookings(ctx context.Context, remoteProperty string, filter BookingFilter) ([]models.PlatformBooking, error) {
	var out []models.PlatformBooking
	cursor := ""
	for {
		q := map[string]string{"unitId": remoteProperty}
		if cursor != "" {
			q["cursor"] = cursor
		}
		if filter.Since != nil {
			q["updatedSince"] = filter.Since.Format(time.RFC3339)
		}
		resp, err := f.request(ctx).SetQueryParams(q).Get(fmt.Sprintf("%s/bookings", f.baseURL))
		if err := f.translate(resp, err); err != nil {
			return nil, err
		}
		var parsed struct {
			Bookings   []fewoBooking `json:"bookings"`
			NextCursor string        `json:"nextCursor"`
		}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return nil, channelerr.New(channelerr.KindValidation, "malformed bookings response")
		}
		for _, bk := range parsed.Bookings {
			out = append(out, bk.toPlatformBooking())
		}
		if parsed.NextCursor == "" {
			break
		}
		cursor = parsed.NextCursor
	}
	return out, nil
}

func (f *Fewo) GetBooking(ctx context.Context, remoteProperty, bookingID string) (models.PlatformBooking, error) {
	resp, err := f.request(ctx).Get(fmt.Sprintf("%s/bookings/%s", f.baseURL, bookingID))
	if err := f.translate(resp, err); err != nil {
		return models.PlatformBooking{}, err
	}
	var bk fewoBooking
	if err := json.Unmarshal(resp.Body(), &bk); err != nil {
		return models.PlatformBooking{}, channelerr.New(channelerr.KindValidation, "malformed booking response")
	}
	return bk.toPlatformBooking(), nil
}

// AcceptInstantBooking confirms an instant-book request on the channel
// side (spec.md §4.3's FeWo-direkt-specific obligation).
func (f *Fewo) AcceptInstantBooking(ctx context.Context, bookingID string) error {
	resp, err := f.request(ctx).Post(fmt.Sprintf("%s/bookings/%s/accept", f.baseURL, bookingID))
	return f.translate(resp, err)
}

// DeclineBooking declines an instant-book request on the channel side.
func (f *Fewo) DeclineBooking(ctx context.Context, bookingID, reason string) error {
	resp, err := f.request(ctx).
		SetBody(map[string]string{"reason": reason}).
		Post(fmt.Sprintf("%s/bookings/%s/decline", f.baseURL, bookingID))
	return f.translate(resp, err)
}

func (f *Fewo) VerifyWebhookSignature(rawPayload []byte, headerValue, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(headerValue)) == 1
}

func (f *Fewo) ParseWebhookEvent(jsonPayload []byte) (models.WebhookEvent, error) {
	var raw struct {
		EventType string      `json:"event_type"`
		UnitID    string      `json:"unit_id"`
		Booking   fewoBooking `json:"booking"`
	}
	if err := json.Unmarshal(jsonPayload, &raw); err != nil {
		return models.WebhookEvent{}, channelerr.New(channelerr.KindValidation, "malformed webhook payload")
	}
	canonical, ok := fewoEventMap[raw.EventType]
	if !ok {
		canonical = "booking.updated"
	}
	booking := raw.Booking.toPlatformBooking()
	return models.WebhookEvent{
		Channel:          models.ChannelFewoDirekt,
		EventType:        canonical,
		RemotePropertyID: raw.UnitID,
		Booking:          &booking,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

var fewoEventMap = map[string]string{
	"booking.new":       "booking.created",
	"booking.changed":   "booking.updated",
	"booking.cancelled": "booking.cancelled",
}

type fewoBooking struct {
	BookingID  string `json:"bookingId"`
	UnitID     string `json:"unitId"`
	Status     string `json:"status"`
	ArrivalDate   string `json:"arrivalDate"`
	DepartureDate string `json:"departureDate"`
	GuestName  string `json:"guestName"`
	GuestEmail string `json:"guestEmail"`
	GuestPhone string `json:"guestPhone"`
	Adults     int    `json:"adults"`
	Children   int    `json:"children"`
	TotalAmount string `json:"totalAmount"`
	Currency   string `json:"currency"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
	GuestNote  string `json:"guestNote"`
}

func (b fewoBooking) toPlatformBooking() models.PlatformBooking {
	checkIn, _ := time.Parse("2006-01-02", b.ArrivalDate)
	checkOut, _ := time.Parse("2006-01-02", b.DepartureDate)
	bookedAt, _ := time.Parse(time.RFC3339, b.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, b.UpdatedAt)
	price, _ := decimal.NewFromString(b.TotalAmount)
	return models.PlatformBooking{
		ChannelBookingID: b.BookingID,
		ListingID:        b.UnitID,
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
		SpecialRequests:  b.GuestNote,
	}
}
