package sync

import (
	"context"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/adapters"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"go.uber.org/zap"
)

// reconcileWindow is how far ahead the nightly reconciliation compares
// local and remote availability (spec.md §4.4's daily pass).
const reconcileWindow = 90 * 24 * time.Hour

// ReconcileAll runs the nightly reconciliation pass across every active
// connection: compare the adapter's reported
// availability against the local calendar and re-push any drift.
func (e *Engine) ReconcileAll(ctx context.Context) error {
	var conns []models.ChannelConnection
	if err := e.db.WithContext(ctx).Where("status = ?", models.ConnectionActive).Find(&conns).Error; err != nil {
		return err
	}
	for i := range conns {
		if err := e.ReconcileConnection(ctx, &conns[i]); err != nil {
			e.logger.Warn("reconcile failed", zap.String("channel", string(conns[i].Channel)), zap.Error(err))
		}
	}
	return nil
}

// ReconcileConnection compares one connection's remote availability
// against the local calendar and corrects any drift it finds. An empty
// remote map means "no information" (spec.md Open Question ii), never
// "everything unavailable" — it is treated as nothing to reconcile.
func (e *Engine) ReconcileConnection(ctx context.Context, conn *models.ChannelConnection) error {
	log := e.openSyncLog(conn.ID, conn.Channel, models.SyncLogReconcile, models.SyncLogOutbound)

	adapter, err := e.adapters.Build(conn)
	if err != nil {
		e.closeSyncLog(ctx, log, models.SyncLogFailure, "adapter_unavailable", err.Error())
		return err
	}

	start := time.Now().UTC().Truncate(24 * time.Hour)
	end := start.Add(reconcileWindow)

	remote, err := adapter.GetAvailability(ctx, conn.RemotePropertyID, adapters.AvailabilityWindow{Start: start, End: end})
	if err != nil {
		e.closeSyncLog(ctx, log, models.SyncLogFailure, "reconcile_error", err.Error())
		return err
	}
	if len(remote) == 0 {
		e.closeSyncLog(ctx, log, models.SyncLogSuccess, "", "no_information")
		return nil
	}

	var cells []models.CalendarCell
	if err := e.db.WithContext(ctx).
		Where("property_id = ? AND date >= ? AND date < ?", conn.PropertyID, start, end).
		Find(&cells).Error; err != nil {
		e.closeSyncLog(ctx, log, models.SyncLogFailure, "query_error", err.Error())
		return err
	}
	local := make(map[string]bool, len(cells))
	for _, c := range cells {
		local[c.Date.Format("2006-01-02")] = c.IsAvailable()
	}

	corrected := 0
	for dateStr, remoteAvailable := range remote {
		// A date with no CalendarCell row is implicitly available: rows
		// are created only when a date is first held or booked (see
		// holdCalendarCells in internal/reservation); a released date
		// keeps its row with status available.
		localAvailable, known := local[dateStr]
		if !known {
			localAvailable = true
		}
		if localAvailable == remoteAvailable {
			continue
		}
		day, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if err := e.UpdateChannelAvailability(ctx, conn, day, day.AddDate(0, 0, 1), localAvailable); err != nil {
			e.logger.Warn("reconcile correction failed", zap.String("date", dateStr), zap.Error(err))
			continue
		}
		corrected++
	}

	log.RecordsProcessed = corrected
	e.closeSyncLog(ctx, log, models.SyncLogSuccess, "", "")
	return nil
}
