package reservation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kolibri-visions/channel-sync/internal/channelerr"
	"go.uber.org/zap"
)

func errorsIsLockContention(err error) bool {
	var lc *channelerr.LockContention
	return errors.As(err, &lc)
}

// Router exposes the reservation HTTP surface of spec.md §6: create,
// confirm, cancel, fetch, and check-availability. The payment
// processor's webhook is served separately by StripeWebhookHandler.
// Routing follows the same gorilla/mux convention
// as internal/webhook.
type Router struct {
	flow   *Flow
	logger *zap.Logger
}

func NewRouter(flow *Flow, logger *zap.Logger) *Router {
	return &Router{flow: flow, logger: logger}
}

func (rt *Router) Mount(r *mux.Router) {
	r.HandleFunc("/api/v1/bookings", rt.create).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bookings/check-availability", rt.checkAvailability).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bookings/{id}", rt.get).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/bookings/{id}/confirm", rt.confirm).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/bookings/{id}/cancel", rt.cancel).Methods(http.MethodPost)
}

type createBookingBody struct {
	TenantID        string `json:"tenant_id"`
	PropertyID      string `json:"property_id"`
	CheckIn         string `json:"check_in"`
	CheckOut        string `json:"check_out"`
	Adults          int    `json:"adults"`
	Children        int    `json:"children"`
	Infants         int    `json:"infants"`
	GuestEmail      string `json:"guest_email"`
	GuestName       string `json:"guest_name"`
	GuestPhone      string `json:"guest_phone"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

func (rt *Router) create(w http.ResponseWriter, r *http.Request) {
	var body createBookingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	checkIn, err1 := time.Parse("2006-01-02", body.CheckIn)
	checkOut, err2 := time.Parse("2006-01-02", body.CheckOut)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "check_in/check_out must be YYYY-MM-DD")
		return
	}

	result, err := rt.flow.CreateBooking(r.Context(), CreateRequest{
		TenantID: body.TenantID, PropertyID: body.PropertyID,
		CheckIn: checkIn, CheckOut: checkOut,
		Adults: body.Adults, Children: body.Children, Infants: body.Infants,
		GuestEmail: body.GuestEmail, GuestName: body.GuestName, GuestPhone: body.GuestPhone,
		SpecialRequests: body.SpecialRequests,
	})
	if err != nil {
		rt.writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"booking_id":            result.BookingID,
		"booking_reference":     result.BookingReference,
		"expires_at":            result.ExpiresAt,
		"total":                 result.Total,
		"currency":              result.Currency,
		"payment_intent_id":     result.PaymentIntentID,
		"payment_client_secret": result.PaymentClientSecret,
	})
}

type confirmBody struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

func (rt *Router) confirm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body confirmBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := rt.flow.ConfirmBooking(r.Context(), id, body.PaymentIntentID); err != nil {
		rt.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

type cancelBody struct {
	Reason string `json:"reason,omitempty"`
}

func (rt *Router) cancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body cancelBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := rt.flow.CancelBooking(r.Context(), id, body.Reason); err != nil {
		rt.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (rt *Router) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	booking, err := rt.flow.GetBooking(r.Context(), id)
	if err != nil {
		rt.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type checkAvailabilityBody struct {
	PropertyID string `json:"property_id"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
}

func (rt *Router) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var body checkAvailabilityBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	checkIn, err1 := time.Parse("2006-01-02", body.CheckIn)
	checkOut, err2 := time.Parse("2006-01-02", body.CheckOut)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "check_in/check_out must be YYYY-MM-DD")
		return
	}
	available, err := rt.flow.CheckAvailability(r.Context(), body.PropertyID, checkIn, checkOut)
	if err != nil {
		rt.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// writeFlowError maps the Flow's sentinel errors to the status codes of
// spec.md §7: 404 (no such property/booking), 409 (unavailable or
// contended), 400 (state/intent mismatch), 500 otherwise.
func (rt *Router) writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPropertyNotFound), errors.Is(err, ErrBookingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errorsIsLockContention(err):
		writeError(w, http.StatusConflict, "booking lock contended, try again")
	case errors.Is(err, ErrStateMismatch), errors.Is(err, ErrIntentMismatch), errors.Is(err, ErrPaymentNotReady):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		rt.logger.Error("reservation flow error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
