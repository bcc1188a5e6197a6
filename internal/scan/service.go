package scan

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/monitors"
)

// ErrScanInProgress is returned when the monitor already has a running scan.
var ErrScanInProgress = errors.New("scan already in progress for this monitor")

// InsertScanJobTxFunc enqueues a scan job within the given transaction.
// Provided by main using river.Client.InsertTx.
type InsertScanJobTxFunc func(ctx context.Context, tx pgx.Tx, args ScanJobArgs) error

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MonitorStore is the registry surface the dispatch path needs.
type MonitorStore interface {
	GetOwned(ctx context.Context, id, userID uuid.UUID) (*models.Monitor, error)
	SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// Service dispatches scans: it charges the credits, marks the monitor active
// and enqueues the durable job, all in one transaction. If any step fails the
// whole dispatch rolls back and no job ever runs.
type Service struct {
	pool          TxBeginner
	monitors      MonitorStore
	ledger        ledger.Service
	insertScanJob InsertScanJobTxFunc
}

func NewService(pool TxBeginner, store MonitorStore, ledgerSvc ledger.Service, insertScanJob InsertScanJobTxFunc) *Service {
	return &Service{pool: pool, monitors: store, ledger: ledgerSvc, insertScanJob: insertScanJob}
}

// Start kicks off a scan for the caller's monitor. Returns
// monitors.ErrNotFound if the monitor is not theirs, ErrScanInProgress if
// one is already running, and the ledger's errors when the charge fails.
func (s *Service) Start(ctx context.Context, userID, monitorID uuid.UUID) error {
	m, err := s.monitors.GetOwned(ctx, monitorID, userID)
	if err != nil {
		return err
	}
	if m.Status == models.MonitorStatusActive {
		return ErrScanInProgress
	}

	// Lazy billing rollover. A user who hasn't touched the app in over a
	// month gets their allowance back the moment they try to scan.
	if err := s.ledger.ResetIfNewBillingPeriod(ctx, userID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.ledger.ChargeScan(ctx, tx, userID, monitorID, models.ScanCost); err != nil {
		return err
	}
	if err := s.monitors.SetStatusTx(ctx, tx, monitorID, models.MonitorStatusActive); err != nil {
		return err
	}
	if err := s.insertScanJob(ctx, tx, ScanJobArgs{
		MonitorID: monitorID,
		UserID:    userID,
		Keyword:   m.Keyword,
		Location:  m.Location,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// re-exported so handlers can map dispatch errors without importing monitors.
var ErrMonitorNotFound = monitors.ErrNotFound
