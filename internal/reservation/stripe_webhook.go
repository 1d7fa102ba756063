package reservation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kolibri-visions/channel-sync/internal/coordination"
	"go.uber.org/zap"
)

// StripeWebhookHandler implements POST /api/v1/webhooks/stripe
// (spec.md §6), dispatching payment_intent.succeeded,
// payment_intent.payment_failed and charge.refunded into the matching
// Flow method. Its succeeded branch mirrors ConfirmBooking so
// confirmation lands even if the frontend's own confirm call is lost.
type StripeWebhookHandler struct {
	flow   *Flow
	coord  *coordination.Client
	secret string
	logger *zap.Logger
}

func NewStripeWebhookHandler(flow *Flow, coord *coordination.Client, secret string, logger *zap.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{flow: flow, coord: coord, secret: secret, logger: logger}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (h *StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		sig := r.Header.Get("Stripe-Signature")
		if !verifyStripeSignature(raw, sig, h.secret) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event stripeEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	seen, err := coordination.HasSeen(ctx, h.coord, "stripe:"+event.ID)
	if err != nil {
		http.Error(w, "coordination store unavailable", http.StatusServiceUnavailable)
		return
	}
	if seen {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already_processed"}`))
		return
	}

	intentID := event.Data.Object.ID
	var dispatchErr error
	switch event.Type {
	case "payment_intent.succeeded":
		dispatchErr = h.flow.HandlePaymentSucceeded(ctx, intentID)
	case "payment_intent.payment_failed":
		dispatchErr = h.flow.HandlePaymentFailed(ctx, intentID)
	case "charge.refunded":
		dispatchErr = h.flow.HandleChargeRefunded(ctx, intentID)
	default:
		h.logger.Info("ignoring unrecognized stripe event type", zap.String("type", event.Type))
	}
	if dispatchErr != nil {
		h.logger.Warn("stripe webhook dispatch failed", zap.String("type", event.Type), zap.Error(dispatchErr))
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if _, err := coordination.MarkSeen(ctx, h.coord, "stripe:"+event.ID); err != nil {
		h.logger.Warn("failed to mark stripe event seen", zap.Error(err))
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"accepted"}`))
}

// verifyStripeSignature is a constant-time HMAC-SHA256 check over the raw
// body, matching the adapters' webhook-signature convention
// (spec.md §4.3 item 7) even though the payment processor is out of
// scope as a collaborator.
func verifyStripeSignature(raw []byte, header, secret string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
