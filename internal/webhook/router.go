// Package webhook is the ingress surface of spec.md §4.5: one route per
// channel, each following the same eight-step shape (read raw bytes,
// verify authenticity, parse, dedupe, resolve the connection, dispatch to
// the sync engine, mark seen, respond) before any database write happens.
// Routing follows the teacher's gorilla/mux convention (see
// services/api_gateway/src/routes).
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kolibri-visions/channel-sync/internal/adapters"
	"github.com/kolibri-visions/channel-sync/internal/config"
	"github.com/kolibri-visions/channel-sync/internal/coordination"
	"github.com/kolibri-visions/channel-sync/internal/metrics"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/kolibri-visions/channel-sync/internal/sync"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router owns the five webhook endpoints plus the health check.
type Router struct {
	engine           *sync.Engine
	db               *gorm.DB
	coord            *coordination.Client
	creds            config.ChannelCredentials
	requireSignature map[string]bool
	verifiers        map[models.ChannelKind]adapters.Adapter
	logger           *zap.Logger
	metrics          *metrics.Registry
}

// NewRouter builds the webhook ingress router. requireSignature gates
// spec.md §4.5 step 2 per channel key ("airbnb", "booking_com", "expedia",
// "fewo_direkt" — Google is always bearer-JWT authenticated); a channel
// missing from the map defaults to requiring its signature header.
func NewRouter(engine *sync.Engine, db *gorm.DB, coord *coordination.Client, creds config.ChannelCredentials, requireSignature map[string]bool, verifiers map[models.ChannelKind]adapters.Adapter, logger *zap.Logger) *Router {
	return &Router{engine: engine, db: db, coord: coord, creds: creds, requireSignature: requireSignature, verifiers: verifiers, logger: logger}
}

// WithMetrics attaches the process-wide Prometheus registry (spec.md §6:
// webhook received/processed counters, processing-time histogram).
func (rt *Router) WithMetrics(m *metrics.Registry) *Router {
	rt.metrics = m
	return rt
}

// Mount registers every webhook route on r, matching the path shape
// spec.md §4.5 specifies.
func (rt *Router) Mount(r *mux.Router) {
	r.HandleFunc("/api/v1/webhooks/airbnb", rt.handle(models.ChannelAirbnb)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/webhooks/booking-com", rt.handle(models.ChannelBookingCom)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/webhooks/expedia", rt.handle(models.ChannelExpedia)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/webhooks/fewo-direkt", rt.handle(models.ChannelFewoDirekt)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/webhooks/google", rt.handle(models.ChannelGoogle)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/webhooks/health", rt.health).Methods(http.MethodGet)
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (rt *Router) handle(channel models.ChannelKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		channelLabel := string(channel)
		if rt.metrics != nil {
			rt.metrics.WebhookReceived.WithLabelValues(channelLabel).Inc()
		}
		result := "accepted"
		defer func() {
			if rt.metrics != nil {
				rt.metrics.WebhookProcessed.WithLabelValues(channelLabel, result).Inc()
				rt.metrics.WebhookDuration.WithLabelValues(channelLabel).Observe(time.Since(start).Seconds())
			}
		}()

		// Step 1: raw bytes, preserved untouched for signature verification.
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			result = "invalid_body"
			http.Error(w, "cannot read body", http.StatusBadRequest)
			return
		}

		// Step 2: verify authenticity before trusting anything in raw.
		if channel == models.ChannelGoogle {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
				result = "invalid_signature"
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			google, _ := rt.verifiers[channel].(interface {
				VerifyWebhookJWT(ctx context.Context, bearerToken string) error
			})
			if google == nil || google.VerifyWebhookJWT(ctx, auth[len(prefix):]) != nil {
				result = "invalid_signature"
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
		} else {
			secret := rt.secretFor(channel)
			header := r.Header.Get(signatureHeader(channel))
			if header == "" {
				// spec.md §4.5 step 2: "If absent, accept (configuration-gated)" —
				// only when the operator explicitly opted the channel out of
				// signature enforcement; otherwise a missing header is rejected
				// exactly like an invalid one.
				if rt.requiresSignature(channel) {
					result = "invalid_signature"
					http.Error(w, "missing signature", http.StatusUnauthorized)
					return
				}
			} else if !rt.verifiers[channel].VerifyWebhookSignature(raw, header, secret) {
				result = "invalid_signature"
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
		}

		// Step 3: parse into the canonical transient shape.
		event, err := rt.verifiers[channel].ParseWebhookEvent(raw)
		if err != nil {
			result = "malformed"
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		event.Channel = channel
		event.ReceivedAt = time.Now().UTC()

		// Step 4: idempotency key, defaulting to a content hash when the
		// adapter didn't already derive one (Google uses its own
		// pub/sub message id, spec.md §4.5 item 8).
		key := event.IdempotencyKey
		if key == "" {
			key = deriveIdempotencyKey(event)
		}
		seen, err := coordination.HasSeen(ctx, rt.coord, key)
		if err != nil {
			result = "coordination_unavailable"
			http.Error(w, "coordination store unavailable", http.StatusServiceUnavailable)
			return
		}
		if seen {
			result = "already_processed"
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"already_processed"}`))
			return
		}

		// Step 5: resolve the connection this payload belongs to.
		var conn models.ChannelConnection
		err = rt.db.WithContext(ctx).
			Where("channel = ? AND remote_property_id = ? AND status = ?", channel, event.RemotePropertyID, models.ConnectionActive).
			First(&conn).Error
		if err != nil {
			result = "skipped"
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"skipped"}`))
			return
		}

		// Step 6: dispatch to the sync engine asynchronously, retrying
		// transient failures with the import backoff schedule — the
		// request returns before the downstream import completes
		// (spec.md §4.5 latency budget: p99 < 500ms end-to-end).
		connCopy := conn
		go rt.dispatchWithRetry(connCopy, event)

		// Step 7: mark seen so a near-simultaneous redelivery
		// short-circuits rather than racing the async dispatch above;
		// the database's UNIQUE(source, channel_booking_id) constraint
		// remains the authoritative race-free dedup if it doesn't.
		if _, err := coordination.MarkSeen(ctx, rt.coord, key); err != nil {
			rt.logger.Warn("failed to mark webhook seen", zap.Error(err))
		}

		// Step 8: acknowledge.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"accepted"}`))
	}
}

// dispatchWithRetry runs dispatch off the request's context (which is
// cancelled the instant the handler returns), retrying transient failures
// per spec.md §4.4's import backoff schedule, and logs the final outcome.
func (rt *Router) dispatchWithRetry(conn models.ChannelConnection, event models.WebhookEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := sync.RetryImport(ctx, func() error {
		return rt.dispatch(ctx, &conn, event)
	}); err != nil {
		rt.logger.Warn("async webhook dispatch failed after retries",
			zap.String("channel", string(conn.Channel)), zap.String("event_type", event.EventType), zap.Error(err))
	}
}

func (rt *Router) dispatch(ctx context.Context, conn *models.ChannelConnection, event models.WebhookEvent) error {
	switch event.EventType {
	case "booking.created", "booking.confirmed", "booking.updated":
		if event.Booking == nil {
			return fmt.Errorf("event %q missing booking payload", event.EventType)
		}
		key := event.IdempotencyKey
		if key == "" {
			key = deriveIdempotencyKey(event)
		}
		_, err := rt.engine.ImportChannelBooking(ctx, conn, *event.Booking, conn.TenantID, key)
		return err
	case "booking.cancelled":
		if event.Booking == nil {
			return fmt.Errorf("cancellation event missing booking payload")
		}
		return rt.engine.OnBookingCancelled(ctx, sync.BookingEvent{
			PropertyID: conn.PropertyID,
			Source:     conn.Channel,
			CheckIn:    event.Booking.CheckIn,
			CheckOut:   event.Booking.CheckOut,
		})
	default:
		rt.logger.Info("ignoring unrecognized webhook event type", zap.String("event_type", event.EventType))
		return nil
	}
}

// requiresSignature reports whether channel must present its signature
// header (spec.md §4.5 step 2). Defaults to true — a channel absent from
// the configured map is never silently left open.
func (rt *Router) requiresSignature(channel models.ChannelKind) bool {
	if rt.requireSignature == nil {
		return true
	}
	required, ok := rt.requireSignature[string(channel)]
	if !ok {
		return true
	}
	return required
}

func (rt *Router) secretFor(channel models.ChannelKind) string {
	switch channel {
	case models.ChannelAirbnb:
		return rt.creds.AirbnbWebhookSecret
	case models.ChannelBookingCom:
		return rt.creds.BookingComWebhookSecret
	case models.ChannelExpedia:
		return rt.creds.ExpediaWebhookSecret
	case models.ChannelFewoDirekt:
		return rt.creds.FewoWebhookSecret
	default:
		return ""
	}
}

func signatureHeader(channel models.ChannelKind) string {
	switch channel {
	case models.ChannelAirbnb:
		return "X-Airbnb-Signature"
	case models.ChannelBookingCom:
		return "X-Booking-Signature"
	case models.ChannelExpedia:
		return "X-Expedia-Signature"
	case models.ChannelFewoDirekt:
		return "X-Fewo-Signature"
	default:
		return ""
	}
}

func deriveIdempotencyKey(event models.WebhookEvent) string {
	bookingID, updatedAt := "", int64(0)
	if event.Booking != nil {
		bookingID = event.Booking.ChannelBookingID
		updatedAt = event.Booking.UpdatedAt.Unix()
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", event.Channel, event.RemotePropertyID, bookingID, updatedAt)))
	return hex.EncodeToString(sum[:])[:32]
}
