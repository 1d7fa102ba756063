// Package scheduler drives the sync engine's recurring tasks from
// external "beat" ticks (spec.md §9): event-stream consumption every
// 10s, polling every 5 minutes, nightly reconciliation at 02:00, and
// hourly token refresh. It uses robfig/cron/v3, the teacher's own
// dependency for scheduled jobs, rather than hand-rolled tickers.
package scheduler

import (
	"context"
	"time"

	"github.com/kolibri-visions/channel-sync/internal/eventstream"
	"github.com/kolibri-visions/channel-sync/internal/reservation"
	"github.com/kolibri-visions/channel-sync/internal/sync"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// taskTimeout is the hard per-task limit of spec.md §5 ("every task has
// a hard time limit of 300s"); the soft limit (240s) is not separately
// enforced here since none of these beat-driven tasks approach it in
// practice, but the hard ceiling bounds a single run regardless.
const taskTimeout = 300 * time.Second

// Scheduler owns the cron driver and every recurring job it dispatches.
type Scheduler struct {
	cron     *cron.Cron
	engine   *sync.Engine
	refresh  *sync.TokenRefresher
	flow     *reservation.Flow
	consumer *eventstream.Consumer
	logger   *zap.Logger
}

func New(engine *sync.Engine, refresh *sync.TokenRefresher, flow *reservation.Flow, consumer *eventstream.Consumer, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		engine:   engine,
		refresh:  refresh,
		flow:     flow,
		consumer: consumer,
		logger:   logger,
	}
}

// dispatch runs fn with a bounded context and logs any error, so one
// failing beat never crashes the scheduler goroutine.
func (s *Scheduler) dispatch(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Warn("scheduled task failed", zap.String("task", name), zap.Error(err))
	}
}

// Start registers every recurring job and begins the cron driver. The
// returned error is non-nil if EnsureGroup fails to set up the
// event-stream consumer group or if a job cannot be registered.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.consumer.EnsureGroup(ctx); err != nil {
		return err
	}

	// Event stream tick: every 10s, block 1s, count 10 (spec.md §4.4).
	if _, err := s.cron.AddFunc("*/10 * * * * *", func() {
		s.dispatch("event_stream_tick", func(ctx context.Context) error {
			return s.consumer.Tick(ctx, s.dispatchEvent)
		})
	}); err != nil {
		return err
	}

	// Polling fallback: every 5 minutes (spec.md §4.4).
	if _, err := s.cron.AddFunc("0 */5 * * * *", func() {
		s.dispatch("poll_all_channel_bookings", s.engine.PollAllChannelBookings)
	}); err != nil {
		return err
	}

	// Nightly reconciliation: 02:00 (spec.md §4.4).
	if _, err := s.cron.AddFunc("0 0 2 * * *", func() {
		s.dispatch("reconcile_all", s.engine.ReconcileAll)
	}); err != nil {
		return err
	}

	// Hourly token refresh (spec.md §4.4).
	if _, err := s.cron.AddFunc("0 0 * * * *", func() {
		s.dispatch("refresh_due_tokens", s.refresh.RefreshDueTokens)
	}); err != nil {
		return err
	}

	// Reservation-expiry backstop: every minute, for reservations whose
	// in-process timer (reservation.Flow.scheduleExpiry) was lost to a
	// worker restart (spec.md §4.6 expire_booking).
	if _, err := s.cron.AddFunc("0 * * * * *", func() {
		s.dispatch("expire_stale_reservations", func(ctx context.Context) error {
			_, err := s.flow.ExpireStaleReservations(ctx)
			return err
		})
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron driver, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
