package sync

import (
	"context"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/circuit"
	"github.com/kolibri-visions/channel-sync/internal/coordination"
	"github.com/kolibri-visions/channel-sync/internal/models"
	"github.com/kolibri-visions/channel-sync/internal/ratelimit"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine is the sync engine: the task-dispatched component of spec.md
// §4.4. Its public methods are the tasks; each is a unit of retry,
// matching the Concurrency & Resource Model's "per-task retry" contract.
type Engine struct {
	db        *gorm.DB
	coord     *coordination.Client
	limiter   *ratelimit.Limiter
	breaker   *circuit.Breaker
	adapters  *AdapterFactory
	logger    *zap.Logger
	refresher *TokenRefresher
}

func NewEngine(db *gorm.DB, coord *coordination.Client, limiter *ratelimit.Limiter, breaker *circuit.Breaker, adapters *AdapterFactory, logger *zap.Logger) *Engine {
	return &Engine{db: db, coord: coord, limiter: limiter, breaker: breaker, adapters: adapters, logger: logger}
}

// WithTokenRefresher wires the token refresher in after both it and the
// engine exist (the refresher itself depends on the engine for its own DB
// access), so an authentication failure on an outbound write can trigger
// an immediate refresh rather than waiting for the hourly beat (spec.md
// §7: "immediately triggers the token-refresh path for the connection").
func (e *Engine) WithTokenRefresher(r *TokenRefresher) *Engine {
	e.refresher = r
	return e
}

// activeConnectionsFor returns every connection for property that should
// receive outbound fan-out for a change whose source is sourceChannel,
// applying the filter of spec.md §4.4's event handlers (active status,
// bidirectional/outbound-only direction, sync_availability flag) and the
// cyclic-reference break of §9.
func (e *Engine) activeConnectionsFor(ctx context.Context, propertyID string, sourceChannel models.ChannelKind, requirePricing bool) ([]models.ChannelConnection, error) {
	var candidates []models.ChannelConnection
	if err := e.db.WithContext(ctx).
		Where("property_id = ? AND status = ?", propertyID, models.ConnectionActive).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	out := make([]models.ChannelConnection, 0, len(candidates))
	for _, c := range candidates {
		if !c.ParticipatesInOutbound(sourceChannel) {
			continue
		}
		if requirePricing && !c.SyncPricing {
			continue
		}
		if !requirePricing && !c.SyncAvailability {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) openSyncLog(connectionID string, channel models.ChannelKind, typ models.SyncLogType, direction models.SyncLogDirection) *models.SyncLog {
	return &models.SyncLog{
		ConnectionID: connectionID,
		Channel:      channel,
		Type:         typ,
		Direction:    direction,
		Status:       models.SyncLogSuccess,
		StartedAt:    time.Now().UTC(),
	}
}

func (e *Engine) closeSyncLog(ctx context.Context, log *models.SyncLog, status models.SyncLogStatus, errKind, errMsg string) {
	log.Finish(status, errKind, errMsg)
	if err := e.db.WithContext(ctx).Create(log).Error; err != nil {
		e.logger.Warn("failed to persist sync log", zap.Error(err))
	}
}
