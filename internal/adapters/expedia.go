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

// Expedia implements Adapter against Expedia Partner Central's REST JSON
// API. Bookings use token-based (nextPageToken) pagination, and each
// reservation nests a roomType/ratePlan structure; spec.md §4.3 says to
// use a single default room/rate plan rather than modeling the nesting.
type Expedia struct {
	client      *resty.Client
	baseURL     string
	accessToken string
}

func NewExpedia(client *resty.Client, baseURL, accessToken string) *Expedia {
	return &Expedia{client: client, baseURL: baseURL, accessToken: accessToken}
}

func (e *Expedia) Kind() models.ChannelKind { return models.ChannelExpedia }

func (e *Expedia) request(ctx context.Context) *resty.Request {
	return e.client.R().SetContext(ctx).SetAuthToken(e.accessToken).SetHeader("Content-Type", "application/json")
}

func (e *Expedia) translate(resp *resty.Response, err error) error {
	if err != nil {
		return channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if resp.IsSuccess() {
		return nil
	}
	return channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), parseRetryAfter(resp.Header().Get("Retry-After")))
}

func (e *Expedia) UpdateAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow, available bool, minStay, maxStay *int) error {
	body := map[string]interface{}{
		"propertyId": remoteProperty,
		"startDate":  dateKey(w.Start),
		"endDate":    dateKey(w.End),
		"available":  available,
	}
	if minStay != nil {
		body["minLengthOfStay"] = *minStay
	}
	if maxStay != nil {
		body["maxLengthOfStay"] = *maxStay
	}
	resp, err := e.request(ctx).SetBody(body).Post(fmt.Sprintf("%s/availability", e.baseURL))
	return e.translate(resp, err)
}

func (e *Expedia) GetAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]bool, error) {
	resp, err := e.request(ctx).
		SetQueryParams(map[string]string{"propertyId": remoteProperty, "startDate": dateKey(w.Start), "endDate": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/availability", e.baseURL))
	if err := e.translate(resp, err); err != nil {
		return nil, err
	}
	var parsed struct {
		Availabilities []struct {
			Date      string `json:"date"`
			Available bool   `json:"available"`
		} `json:"availabilities"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed availability response")
	}
	out := make(map[string]bool, len(parsed.Availabilities))
	for _, a := range parsed.Availabilities {
		out[a.Date] = a.Available
	}
	return out, nil
}

func (e *Expedia) UpdatePricing(ctx context.Context, remoteProperty string, date time.Time, price decimal.Decimal, currency string) error {
	return e.UpdatePricingBulk(ctx, remoteProperty, []PricingEntry{{Date: date, Price: price}}, currency)
}

func (e *Expedia) UpdatePricingBulk(ctx context.Context, remoteProperty string, entries []PricingEntry, currency string) error {
	rates := make([]map[string]interface{}, 0, len(entries))
	for _, ent := range entries {
		rates = append(rates, map[string]interface{}{
			"date":     dateKey(ent.Date),
			"amount":   ent.Price.StringFixed(2),
			"currency": currency,
		})
	}
	resp, err := e.request(ctx).
		SetBody(map[string]interface{}{"propertyId": remoteProperty, "rates": rates}).
		Post(fmt.Sprintf("%s/rates", e.baseURL))
	return e.translate(resp, err)
}

func (e *Expedia) GetPricing(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]decimal.Decimal, error) {
	resp, err := e.request(ctx).
		SetQueryParams(map[string]string{"propertyId": remoteProperty, "startDate": dateKey(w.Start), "endDate": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/rates", e.baseURL))
	if err := e.translate(resp, err); err != nil {
		return nil, err
	}
	var parsed struct {
		Rates []struct {
			Date   string `json:"date"`
			Amount string `json:"amount"`
		} `json:"rates"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed rates response")
	}
	out := make(map[string]decimal.Decimal, len(parsed.Rates))
	for _, r := range parsed.Rates {
		price, _ := decimal.NewFromString(r.Amount)
		out[r.Date] = price
	}
	return out, nil
}

func (e *Expedia) GetBookings(ctx context.Context, remoteProperty string, filter BookingFilter) ([]models.PlatformBooking, error) {
	var out []models.PlatformBooking
	pageToken := ""
	for {
		q := map[string]string{"propertyId": remoteProperty}
		if pageToken != "" {
			q["nextPageToken"] = pageToken
		}
		if filter.Since != nil {
			q["updatedSince"] = filter.Since.Format(time.RFC3339)
		}
		resp, err := e.request(ctx).SetQueryParams(q).Get(fmt.Sprintf("%s/reservations", e.baseURL))
		if err := e.translate(resp, err); err != nil {
			return nil, err
		}
		var parsed struct {
			Reservations  []expediaReservation `json:"reservations"`
			NextPageToken string               `json:"nextPageToken"`
		}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return nil, channelerr.New(channelerr.KindValidation, "malformed reservations response")
		}
		for _, r := range parsed.Reservations {
			out = append(out, r.toPlatformBooking())
		}
		if parsed.NextPageToken == "" {
			break
		}
		pageToken = parsed.NextPageToken
	}
	return out, nil
}

func (e *Expedia) GetBooking(ctx context.Context, remoteProperty, bookingID string) (models.PlatformBooking, error) {
	resp, err := e.request(ctx).Get(fmt.Sprintf("%s/reservations/%s", e.baseURL, bookingID))
	if err := e.translate(resp, err); err != nil {
		return models.PlatformBooking{}, err
	}
	var r expediaReservation
	if err := json.Unmarshal(resp.Body(), &r); err != nil {
		return models.PlatformBooking{}, channelerr.New(channelerr.KindValidation, "malformed reservation response")
	}
	return r.toPlatformBooking(), nil
}

func (e *Expedia) VerifyWebhookSignature(rawPayload []byte, headerValue, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(headerValue)) == 1
}

func (e *Expedia) ParseWebhookEvent(jsonPayload []byte) (models.WebhookEvent, error) {
	var raw struct {
		EventType   string             `json:"eventType"`
		PropertyID  string             `json:"propertyId"`
		Reservation expediaReservation `json:"reservation"`
	}
	if err := json.Unmarshal(jsonPayload, &raw); err != nil {
		return models.WebhookEvent{}, channelerr.New(channelerr.KindValidation, "malformed webhook payload")
	}
	canonical, ok := expediaEventMap[raw.EventType]
	if !ok {
		canonical = "booking.updated"
	}
	booking := raw.Reservation.toPlatformBooking()
	return models.WebhookEvent{
		Channel:          models.ChannelExpedia,
		EventType:        canonical,
		RemotePropertyID: raw.PropertyID,
		Booking:          &booking,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

var expediaEventMap = map[string]string{
	"RESERVATION_CREATED":   "booking.created",
	"RESERVATION_MODIFIED":  "booking.updated",
	"RESERVATION_CANCELLED": "booking.cancelled",
}

// expediaReservation models only the single default roomType/ratePlan
// path (spec.md §4.3: "use a single default").
type expediaReservation struct {
	ConfirmationID string `json:"confirmationId"`
	PropertyID     string `json:"propertyId"`
	Status         string `json:"status"`
	CheckInDate    string `json:"checkInDate"`
	CheckOutDate   string `json:"checkOutDate"`
	Guest          struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"guest"`
	Occupancy struct {
		Adults   int `json:"adults"`
		Children int `json:"children"`
	} `json:"occupancy"`
	RoomTypes []struct {
		RatePlans []struct {
			TotalAmount string `json:"totalAmount"`
			Currency    string `json:"currency"`
		} `json:"ratePlans"`
	} `json:"roomTypes"`
	BookedAt  string `json:"bookedAt"`
	UpdatedAt string `json:"updatedAt"`
	SpecialRequests string `json:"specialRequests"`
}

func (r expediaReservation) toPlatformBooking() models.PlatformBooking {
	checkIn, _ := time.Parse("2006-01-02", r.CheckInDate)
	checkOut, _ := time.Parse("2006-01-02", r.CheckOutDate)
	bookedAt, _ := time.Parse(time.RFC3339, r.BookedAt)
	updatedAt, _ := time.Parse(time.RFC3339, r.UpdatedAt)

	var price decimal.Decimal
	currency := "USD"
	if len(r.RoomTypes) > 0 && len(r.RoomTypes[0].RatePlans) > 0 {
		plan := r.RoomTypes[0].RatePlans[0]
		price, _ = decimal.NewFromString(plan.TotalAmount)
		currency = plan.Currency
	}

	return models.PlatformBooking{
		ChannelBookingID: r.ConfirmationID,
		ListingID:        r.PropertyID,
		Status:           r.Status,
		CheckIn:          checkIn,
		CheckOut:         checkOut,
		GuestName:        fmt.Sprintf("%s %s", r.Guest.FirstName, r.Guest.LastName),
		GuestEmail:       r.Guest.Email,
		GuestPhone:       r.Guest.Phone,
		Adults:           r.Occupancy.Adults,
		Children:         r.Occupancy.Children,
		TotalPrice:       price,
		Currency:         currency,
		BookedAt:         bookedAt,
		UpdatedAt:        updatedAt,
		SpecialRequests:  r.SpecialRequests,
	}
}
