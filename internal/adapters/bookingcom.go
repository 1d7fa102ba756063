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

	"github.com/beevik/etree"
	"github.com/kolibri-visions/channel-sync/internal/channelerr"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// BookingCom implements Adapter against Booking.com's OTA XML ARI
// endpoints plus its REST JSON reservations API (spec.md §4.3: "XML (OTA
// schema) for availability/rate writes and reads; REST JSON for
// reservations; two base URLs").
type BookingCom struct {
	client      *resty.Client
	xmlBaseURL  string
	jsonBaseURL string
	username    string
	password    string
}

// NewBookingCom builds a Booking.com adapter. Booking.com authenticates
// XML ARI calls with HTTP basic auth rather than a bearer token.
func NewBookingCom(client *resty.Client, xmlBaseURL, jsonBaseURL, username, password string) *BookingCom {
	return &BookingCom{client: client, xmlBaseURL: xmlBaseURL, jsonBaseURL: jsonBaseURL, username: username, password: password}
}

func (b *BookingCom) Kind() models.ChannelKind { return models.ChannelBookingCom }

func (b *BookingCom) xmlRequest(ctx context.Context) *resty.Request {
	return b.client.R().
		SetContext(ctx).
		SetBasicAuth(b.username, b.password).
		SetHeader("Content-Type", "application/xml")
}

func (b *BookingCom) jsonRequest(ctx context.Context) *resty.Request {
	return b.client.R().
		SetContext(ctx).
		SetBasicAuth(b.username, b.password).
		SetHeader("Content-Type", "application/json")
}

// translateXML surfaces <Error> elements as failures and <Warning>
// elements merely as a returned warning list, per spec.md §4.3.
func (b *BookingCom) translateXML(resp *resty.Response, err error) ([]string, error) {
	if err != nil {
		return nil, channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if !resp.IsSuccess() {
		return nil, channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), parseRetryAfter(resp.Header().Get("Retry-After")))
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(resp.Body()); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed OTA XML response")
	}
	var warnings []string
	for _, e := range doc.FindElements("//Error") {
		return nil, channelerr.New(channelerr.KindValidation, e.Text())
	}
	for _, w := range doc.FindElements("//Warning") {
		warnings = append(warnings, w.Text())
	}
	return warnings, nil
}

func (b *BookingCom) UpdateAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow, available bool, minStay, maxStay *int) error {
	doc := etree.NewDocument()
	root := doc.CreateElement("OTA_HotelAvailNotifRQ")
	avail := root.CreateElement("AvailStatusMessages")
	msg := avail.CreateElement("AvailStatusMessage")
	status := msg.CreateElement("StatusApplicationControl")
	status.CreateAttr("Start", dateKey(w.Start))
	status.CreateAttr("End", dateKey(w.End))
	status.CreateAttr("HotelCode", remoteProperty)
	restriction := "Open"
	if !available {
		restriction = "Close"
	}
	msg.CreateAttr("RestrictionStatus", restriction)
	if minStay != nil {
		msg.CreateAttr("MinLOS", fmt.Sprintf("%d", *minStay))
	}
	if maxStay != nil {
		msg.CreateAttr("MaxLOS", fmt.Sprintf("%d", *maxStay))
	}

	body, err := doc.WriteToString()
	if err != nil {
		return channelerr.New(channelerr.KindValidation, "failed to serialize OTA XML")
	}
	resp, httpErr := b.xmlRequest(ctx).SetBody(body).Post(fmt.Sprintf("%s/ari/availability", b.xmlBaseURL))
	_, err = b.translateXML(resp, httpErr)
	return err
}

func (b *BookingCom) GetAvailability(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]bool, error) {
	resp, httpErr := b.xmlRequest(ctx).
		SetQueryParams(map[string]string{"hotel_code": remoteProperty, "start": dateKey(w.Start), "end": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/ari/availability", b.xmlBaseURL))
	if _, err := b.translateXML(resp, httpErr); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(resp.Body()); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed OTA XML response")
	}
	out := make(map[string]bool)
	for _, msg := range doc.FindElements("//AvailStatusMessage") {
		start := msg.SelectAttrValue("Start", "")
		end := msg.SelectAttrValue("End", "")
		available := msg.SelectAttrValue("RestrictionStatus", "Open") == "Open"
		startD, e1 := time.Parse("2006-01-02", start)
		endD, e2 := time.Parse("2006-01-02", end)
		if e1 != nil || e2 != nil {
			continue
		}
		for d := startD; d.Before(endD); d = d.AddDate(0, 0, 1) {
			out[dateKey(d)] = available
		}
	}
	return out, nil
}

func (b *BookingCom) UpdatePricing(ctx context.Context, remoteProperty string, date time.Time, price decimal.Decimal, currency string) error {
	return b.UpdatePricingBulk(ctx, remoteProperty, []PricingEntry{{Date: date, Price: price}}, currency)
}

func (b *BookingCom) UpdatePricingBulk(ctx context.Context, remoteProperty string, entries []PricingEntry, currency string) error {
	doc := etree.NewDocument()
	root := doc.CreateElement("OTA_HotelRatePlanNotifRQ")
	rates := root.CreateElement("RatePlans")
	rates.CreateAttr("HotelCode", remoteProperty)
	for _, e := range entries {
		rate := rates.CreateElement("RatePlan")
		rate.CreateAttr("Start", dateKey(e.Date))
		rate.CreateAttr("End", dateKey(e.Date.AddDate(0, 0, 1)))
		base := rate.CreateElement("Rates").CreateElement("Rate").CreateElement("BaseByGuestAmts").CreateElement("BaseByGuestAmt")
		base.CreateAttr("AmountBeforeTax", e.Price.StringFixed(2))
		base.CreateAttr("CurrencyCode", currency)
	}
	body, err := doc.WriteToString()
	if err != nil {
		return channelerr.New(channelerr.KindValidation, "failed to serialize OTA XML")
	}
	resp, httpErr := b.xmlRequest(ctx).SetBody(body).Post(fmt.Sprintf("%s/ari/rates", b.xmlBaseURL))
	_, err = b.translateXML(resp, httpErr)
	return err
}

func (b *BookingCom) GetPricing(ctx context.Context, remoteProperty string, w AvailabilityWindow) (map[string]decimal.Decimal, error) {
	resp, httpErr := b.xmlRequest(ctx).
		SetQueryParams(map[string]string{"hotel_code": remoteProperty, "start": dateKey(w.Start), "end": dateKey(w.End)}).
		Get(fmt.Sprintf("%s/ari/rates", b.xmlBaseURL))
	if _, err := b.translateXML(resp, httpErr); err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(resp.Body()); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed OTA XML response")
	}
	out := make(map[string]decimal.Decimal)
	for _, rate := range doc.FindElements("//RatePlan") {
		start := rate.SelectAttrValue("Start", "")
		startD, err := time.Parse("2006-01-02", start)
		if err != nil {
			continue
		}
		amt := rate.FindElement(".//BaseByGuestAmt")
		if amt == nil {
			continue
		}
		price, _ := decimal.NewFromString(amt.SelectAttrValue("AmountBeforeTax", "0"))
		out[dateKey(startD)] = price
	}
	return out, nil
}

func (b *BookingCom) GetBookings(ctx context.Context, remoteProperty string, filter BookingFilter) ([]models.PlatformBooking, error) {
	q := map[string]string{"hotel_id": remoteProperty}
	if filter.Since != nil {
		q["updated_since"] = filter.Since.Format(time.RFC3339)
	}
	resp, err := b.jsonRequest(ctx).SetQueryParams(q).Get(fmt.Sprintf("%s/reservations", b.jsonBaseURL))
	if !resp.IsSuccess() || err != nil {
		if err != nil {
			return nil, channelerr.New(channelerr.KindTransientNetwork, err.Error())
		}
		return nil, channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), 0)
	}
	var parsed struct {
		Reservations []bookingComReservation `json:"reservations"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, channelerr.New(channelerr.KindValidation, "malformed reservations response")
	}
	out := make([]models.PlatformBooking, 0, len(parsed.Reservations))
	for _, r := range parsed.Reservations {
		out = append(out, r.toPlatformBooking())
	}
	return out, nil
}

func (b *BookingCom) GetBooking(ctx context.Context, remoteProperty, bookingID string) (models.PlatformBooking, error) {
	resp, err := b.jsonRequest(ctx).Get(fmt.Sprintf("%s/reservations/%s", b.jsonBaseURL, bookingID))
	if err != nil {
		return models.PlatformBooking{}, channelerr.New(channelerr.KindTransientNetwork, err.Error())
	}
	if !resp.IsSuccess() {
		return models.PlatformBooking{}, channelerr.FromHTTPStatus(resp.StatusCode(), string(resp.Body()), 0)
	}
	var r bookingComReservation
	if err := json.Unmarshal(resp.Body(), &r); err != nil {
		return models.PlatformBooking{}, channelerr.New(channelerr.KindValidation, "malformed reservation response")
	}
	return r.toPlatformBooking(), nil
}

func (b *BookingCom) VerifyWebhookSignature(rawPayload []byte, headerValue, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(headerValue)) == 1
}

func (b *BookingCom) ParseWebhookEvent(jsonPayload []byte) (models.WebhookEvent, error) {
	var raw struct {
		EventType   string               `json:"event_type"`
		HotelID     string               `json:"hotel_id"`
		Reservation bookingComReservation `json:"reservation"`
	}
	if err := json.Unmarshal(jsonPayload, &raw); err != nil {
		return models.WebhookEvent{}, channelerr.New(channelerr.KindValidation, "malformed webhook payload")
	}
	canonical, ok := bookingComEventMap[raw.EventType]
	if !ok {
		canonical = "booking.updated"
	}
	booking := raw.Reservation.toPlatformBooking()
	return models.WebhookEvent{
		Channel:          models.ChannelBookingCom,
		EventType:        canonical,
		RemotePropertyID: raw.HotelID,
		Booking:          &booking,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

var bookingComEventMap = map[string]string{
	"reservation.new":       "booking.created",
	"reservation.modified":  "booking.updated",
	"reservation.cancelled": "booking.cancelled",
}

type bookingComReservation struct {
	ReservationID string `json:"reservation_id"`
	HotelID       string `json:"hotel_id"`
	Status        string `json:"status"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	GuestName     string `json:"guest_name"`
	GuestEmail    string `json:"guest_email"`
	GuestPhone    string `json:"guest_phone"`
	Adults        int    `json:"adults"`
	Children      int    `json:"children"`
	TotalPrice    string `json:"total_price"`
	Currency      string `json:"currency"`
	BookedAt      string `json:"booked_at"`
	UpdatedAt     string `json:"updated_at"`
	Remarks       string `json:"remarks"`
}

func (r bookingComReservation) toPlatformBooking() models.PlatformBooking {
	checkIn, _ := time.Parse("2006-01-02", r.CheckIn)
	checkOut, _ := time.Parse("2006-01-02", r.CheckOut)
	bookedAt, _ := time.Parse(time.RFC3339, r.BookedAt)
	updatedAt, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	price, _ := decimal.NewFromString(r.TotalPrice)
	return models.PlatformBooking{
		ChannelBookingID: r.ReservationID,
		ListingID:        r.HotelID,
		Status:           r.Status,
		CheckIn:          checkIn,
		CheckOut:         checkOut,
		GuestName:        r.GuestName,
		GuestEmail:       r.GuestEmail,
		GuestPhone:       r.GuestPhone,
		Adults:           r.Adults,
		Children:         r.Children,
		TotalPrice:       price,
		Currency:         r.Currency,
		BookedAt:         bookedAt,
		UpdatedAt:        updatedAt,
		SpecialRequests:  r.Remarks,
	}
}
