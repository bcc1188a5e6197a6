// Package scheduler runs the weekly sweep that re-scans every paused
// monitor, keeping lead lists fresh without the user clicking anything.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/scan"
)

// MonitorLister feeds the sweep. Only paused monitors are eligible; an active
// one already has a scan in flight.
type MonitorLister interface {
	ListPaused(ctx context.Context) ([]*models.Monitor, error)
}

// Dispatcher starts one scan; *scan.Service satisfies it.
type Dispatcher interface {
	Start(ctx context.Context, userID, monitorID uuid.UUID) error
}

type Scheduler struct {
	cron     *cron.Cron
	monitors MonitorLister
	scans    Dispatcher
	spec     string
	log      *slog.Logger
}

func New(monitors MonitorLister, scans Dispatcher, spec string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(),
		monitors: monitors,
		scans:    scans,
		spec:     spec,
		log:      log,
	}
}

// Start registers the sweep and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.log.Info("weekly scan scheduler started", "spec", s.spec)
	return nil
}

// Stop halts the cron loop. Sweeps already running finish on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("weekly scan scheduler stopped")
}

// Sweep dispatches a scan for every paused monitor. Users who can't afford a
// scan or have hit their monthly quota are skipped, not failed: their
// monitors simply sit out this round.
func (s *Scheduler) Sweep(ctx context.Context) {
	list, err := s.monitors.ListPaused(ctx)
	if err != nil {
		s.log.Error("sweep: list paused monitors failed", "error", err)
		return
	}
	if len(list) == 0 {
		return
	}

	dispatched, skipped := 0, 0
	for _, m := range list {
		err := s.scans.Start(ctx, m.UserID, m.ID)
		switch {
		case err == nil:
			dispatched++
		case errors.Is(err, ledger.ErrInsufficientCredits),
			errors.Is(err, ledger.ErrScanLimitReached),
			errors.Is(err, scan.ErrScanInProgress):
			skipped++
		default:
			s.log.Error("sweep: dispatch failed", "monitor_id", m.ID, "error", err)
			skipped++
		}
	}
	s.log.Info("weekly sweep complete", "eligible", len(list), "dispatched", dispatched, "skipped", skipped)
}
