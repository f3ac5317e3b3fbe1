// Package reminder runs the periodic overdue-invoice sweep: unpaid invoices
// past their due date trigger a push notification to the room's subscribers.
package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dorm-billing-backend/config"
	"dorm-billing-backend/internal/notification"
	"dorm-billing-backend/internal/store"
)

// Service periodically scans for overdue invoices and dispatches reminders.
type Service struct {
	cfg        *config.Config
	store      store.Store
	workerPool *notification.WorkerPool
	logger     *zap.Logger
}

// NewService creates a reminder service. The worker pool is shared with the
// API layer; the reminder only produces jobs for it.
func NewService(cfg *config.Config, s store.Store, pool *notification.WorkerPool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, store: s, workerPool: pool, logger: logger}
}

// Run starts the reminder loop. It returns immediately when the reminder is
// disabled in configuration.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Reminder.Enabled {
		s.logger.Info("overdue reminder is disabled, not starting")
		return
	}
	s.logger.Info("starting overdue reminder", zap.Duration("interval", s.cfg.Reminder.Interval))

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Reminder.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("overdue reminder shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Reminder.Interval)
		}
	}
}

// SweepOnce performs a single overdue scan and dispatches one reminder per
// overdue invoice. Repeats across sweeps are intentional: an unpaid bill
// stays noisy until it is paid.
func (s *Service) SweepOnce(ctx context.Context) {
	now := time.Now().UTC()

	invoices, err := s.store.OverdueInvoices(ctx, now)
	if err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
		return
	}
	if len(invoices) == 0 {
		return
	}

	s.logger.Info("dispatching overdue reminders", zap.Int("count", len(invoices)))
	for _, inv := range invoices {
		s.workerPool.Dispatch(notification.Event{
			Kind:        notification.EventInvoiceOverdue,
			RoomID:      inv.RoomID,
			InvoiceCode: inv.InvoiceCode,
			Amount:      inv.Amount,
		})
	}
}
