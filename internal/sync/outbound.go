package sync

import (
	"context"
	"errors"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/adapters"
	"github.com/kolibri-visions/channel-sync/internal/channelerr"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BookingEvent is the decoded local-change payload dispatched to the
// four outbound handlers (spec.md §4.4).
type BookingEvent struct {
	PropertyID string
	Source     models.ChannelKind
	CheckIn    time.Time
	CheckOut   time.Time
	Available  bool
}

// PricingEvent carries a pricing change to fan out.
type PricingEvent struct {
	PropertyID string
	Source     models.ChannelKind
	Rates      []adapters.PricingEntry
	Currency   string
}

// OnBookingConfirmed fans out an availability block to every connection
// eligible per spec.md §4.4, excluding the booking's source channel.
func (e *Engine) OnBookingConfirmed(ctx context.Context, ev BookingEvent) error {
	return e.fanOutAvailability(ctx, ev, false)
}

// OnBookingCancelled fans out the availability release.
func (e *Engine) OnBookingCancelled(ctx context.Context, ev BookingEvent) error {
	return e.fanOutAvailability(ctx, ev, true)
}

// OnAvailabilityUpdated fans out a direct availability change (e.g. a
// manual block/unblock in the PMS, not tied to a booking).
func (e *Engine) OnAvailabilityUpdated(ctx context.Context, ev BookingEvent) error {
	return e.fanOutAvailability(ctx, ev, ev.Available)
}

func (e *Engine) fanOutAvailability(ctx context.Context, ev BookingEvent, released bool) error {
	conns, err := e.activeConnectionsFor(ctx, ev.PropertyID, ev.Source, false)
	if err != nil {
		return err
	}
	available := released
	for _, c := range conns {
		if err := e.UpdateChannelAvailability(ctx, &c, ev.CheckIn, ev.CheckOut, available); err != nil {
			e.logger.Warn("outbound availability write failed", zap.String("channel", string(c.Channel)), zap.Error(err))
		}
	}
	return nil
}

// OnPricingUpdated fans out a pricing change to every eligible connection.
func (e *Engine) OnPricingUpdated(ctx context.Context, ev PricingEvent) error {
	conns, err := e.activeConnectionsFor(ctx, ev.PropertyID, ev.Source, true)
	if err != nil {
		return err
	}
	for _, c := range conns {
		if err := e.UpdateChannelPricing(ctx, &c, ev.Rates, ev.Currency); err != nil {
			e.logger.Warn("outbound pricing write failed", zap.String("channel", string(c.Channel)), zap.Error(err))
		}
	}
	return nil
}

// UpdateChannelAvailability is the per-channel write task of spec.md
// §4.4 step sequence (a)-(g): open SyncLog, acquire rate limit slot,
// check the circuit breaker, invoke the adapter, and close the SyncLog
// with the right terminal status.
func (e *Engine) UpdateChannelAvailability(ctx context.Context, conn *models.ChannelConnection, start, end time.Time, available bool) error {
	log := e.openSyncLog(conn.ID, conn.Channel, models.SyncLogAvailability, models.SyncLogOutbound)

	skipped := false
	writeErr := withRetry(ctx, MaxRetriesWrite, func() error {
		if err := e.limiter.AcquireOrRaise(ctx, string(conn.Channel)); err != nil {
			return err
		}
		if err := e.breaker.CanExecute(ctx, string(conn.Channel)); err != nil {
			skipped = true
			return nil
		}

		adapter, err := e.adapters.Build(conn)
		if err != nil {
			return err
		}
		return adapter.UpdateAvailability(ctx, conn.RemotePropertyID, adapters.AvailabilityWindow{Start: start, End: end}, available, nil, nil)
	})
	if skipped {
		e.closeSyncLog(ctx, log, models.SyncLogSkipped, string(channelerr.KindCircuitOpen), "circuit_breaker_open")
		return nil
	}
	return e.finishWrite(ctx, log, conn, writeErr)
}

// UpdateChannelPricing is the per-channel pricing write task, applying
// the connection's price_adjustment rule before invoking the adapter
// (spec.md §4.4 step (d)).
func (e *Engine) UpdateChannelPricing(ctx context.Context, conn *models.ChannelConnection, rates []adapters.PricingEntry, currency string) error {
	log := e.openSyncLog(conn.ID, conn.Channel, models.SyncLogPricing, models.SyncLogOutbound)

	adjusted := make([]adapters.PricingEntry, len(rates))
	for i, r := range rates {
		adjustedPrice := conn.ApplyPriceAdjustment(mustFloat(r.Price))
		adjusted[i] = adapters.PricingEntry{Date: r.Date, Price: decimal.NewFromFloat(adjustedPrice)}
	}

	skipped := false
	writeErr := withRetry(ctx, MaxRetriesWrite, func() error {
		if err := e.limiter.AcquireOrRaise(ctx, string(conn.Channel)); err != nil {
			return err
		}
		if err := e.breaker.CanExecute(ctx, string(conn.Channel)); err != nil {
			skipped = true
			return nil
		}

		adapter, err := e.adapters.Build(conn)
		if err != nil {
			return err
		}
		return adapter.UpdatePricingBulk(ctx, conn.RemotePropertyID, adjusted, currency)
	})
	if skipped {
		e.closeSyncLog(ctx, log, models.SyncLogSkipped, string(channelerr.KindCircuitOpen), "circuit_breaker_open")
		return nil
	}
	return e.finishWrite(ctx, log, conn, writeErr)
}

// triggerImmediateRefresh runs the token-refresh path for conn off the
// request/task context (which may already be cancelled by the time this
// goroutine runs), per spec.md §7's authentication-failure handling.
func (e *Engine) triggerImmediateRefresh(conn models.ChannelConnection) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.refresher.RefreshConnection(ctx, &conn); err != nil {
		e.logger.Warn("immediate token refresh after auth failure did not succeed",
			zap.String("channel", string(conn.Channel)), zap.String("connection_id", conn.ID), zap.Error(err))
	}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// finishWrite applies the success/failure handling common to both write
// tasks (spec.md §4.4 steps (f)/(g)).
func (e *Engine) finishWrite(ctx context.Context, log *models.SyncLog, conn *models.ChannelConnection, writeErr error) error {
	now := time.Now().UTC()
	if writeErr == nil {
		if err := e.breaker.ReportSuccess(ctx, string(conn.Channel)); err != nil {
			e.logger.Warn("failed to report circuit success", zap.Error(err))
		}
		conn.LastSyncAt = &now
		conn.LastSuccessfulSyncAt = &now
		e.db.WithContext(ctx).Model(conn).Updates(map[string]interface{}{
			"last_sync_at": now, "last_successful_sync_at": now,
		})
		e.closeSyncLog(ctx, log, models.SyncLogSuccess, "", "")
		return nil
	}

	kind := channelerr.KindOf(writeErr)
	if kind != channelerr.KindAuthentication {
		if err := e.breaker.ReportFailure(ctx, string(conn.Channel)); err != nil {
			e.logger.Warn("failed to report circuit failure", zap.Error(err))
		}
	} else if e.refresher != nil {
		connCopy := *conn
		go e.triggerImmediateRefresh(connCopy)
	}
	if kind == channelerr.KindRateLimited {
		var ae *channelerr.AdapterError
		if errors.As(writeErr, &ae) {
			e.limiter.ReportRemoteRateLimit(string(conn.Channel), ae.RetryAfter)
		}
	}
	conn.LastSyncAt = &now
	conn.ErrorCount++
	conn.LastErrorAt = &now
	conn.LastErrorMessage = writeErr.Error()
	e.db.WithContext(ctx).Model(conn).Updates(map[string]interface{}{
		"last_sync_at": now, "error_count": conn.ErrorCount, "last_error_at": now, "last_error_message": writeErr.Error(),
	})
	e.closeSyncLog(ctx, log, models.SyncLogFailure, string(kind), writeErr.Error())
	return writeErr
}
