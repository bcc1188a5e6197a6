package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadpulse/backend/internal/classifier"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/monitors"
	"github.com/leadpulse/backend/internal/provider"
	"github.com/leadpulse/backend/internal/scanlog"
)

// Poll cadence against the provider. Sixty attempts at five seconds gives a
// run five minutes to finish before the timeout settlement kicks in.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60
)

// ProviderClient is the slice of the provider the runner needs.
type ProviderClient interface {
	StartJob(ctx context.Context, keyword, location string, limit int) (string, error)
	PollStatus(ctx context.Context, jobID string) (*provider.Status, error)
}

// MonitorSettler is the registry surface the poll loop and settlement need.
type MonitorSettler interface {
	Status(ctx context.Context, id uuid.UUID) (string, error)
	SettleTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, outcome string) (bool, error)
}

// Refunder reverses a scan charge after the fact. The Tx form pairs the
// refund with the settlement write; the standalone form serves the path
// where the monitor row no longer exists.
type Refunder interface {
	RefundScan(ctx context.Context, userID, monitorID uuid.UUID, amount int) error
	RefundScanTx(ctx context.Context, tx pgx.Tx, userID, monitorID uuid.UUID, amount int) error
}

// LeadMerger folds classified leads into the dictionary and links the user.
type LeadMerger interface {
	Merge(ctx context.Context, userID uuid.UUID, leads []models.Lead) (inserted, linked int, err error)
}

// Runner executes one scan end to end: submit, poll, classify, merge, settle.
// Any path that delivers no leads refunds the charge, so a user's balance
// only ever moves when they get something for it.
type Runner struct {
	pool     TxBeginner
	provider ProviderClient
	monitors MonitorSettler
	ledger   Refunder
	merger   LeadMerger
	events   scanlog.Sink
	logger   *slog.Logger

	PollInterval time.Duration
	MaxAttempts  int
	ResultLimit  int
}

func NewRunner(pool TxBeginner, p ProviderClient, m MonitorSettler, l Refunder, merger LeadMerger, events scanlog.Sink, logger *slog.Logger, resultLimit int) *Runner {
	return &Runner{
		pool:         pool,
		provider:     p,
		monitors:     m,
		ledger:       l,
		merger:       merger,
		events:       events,
		logger:       logger,
		PollInterval: DefaultPollInterval,
		MaxAttempts:  DefaultMaxAttempts,
		ResultLimit:  resultLimit,
	}
}

// Run drives one scan job. It always settles: every exit path either records
// a paid-for success or refunds and pauses, atomically and exactly once. The
// queue retries the job when an error is returned, so a retried Run first
// checks whether an earlier attempt already settled this scan.
func (r *Runner) Run(ctx context.Context, args ScanJobArgs) error {
	switch status, err := r.monitors.Status(ctx, args.MonitorID); {
	case errors.Is(err, monitors.ErrNotFound):
		// Monitor deleted before the job ran; return the charge.
		return r.ledger.RefundScan(ctx, args.UserID, args.MonitorID, models.ScanCost)
	case err != nil:
		return err
	case status != models.MonitorStatusActive:
		// An earlier attempt of this job already settled the scan.
		return nil
	}

	r.say(ctx, args.MonitorID, fmt.Sprintf("Scan started for %q in %s", args.Keyword, args.Location))

	jobID, err := r.provider.StartJob(ctx, args.Keyword, args.Location, r.ResultLimit)
	if err != nil {
		r.logger.Error("provider submit failed", "monitor_id", args.MonitorID, "error", err)
		r.say(ctx, args.MonitorID, "Search provider rejected the request, refunding credits")
		return r.compensate(ctx, args, models.ScanOutcomeFailed)
	}
	r.say(ctx, args.MonitorID, "Search submitted, waiting for results")

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		// A deleted monitor cancels its own scan. The charge is reversed
		// since the provider results will never be delivered to anyone.
		status, err := r.monitors.Status(ctx, args.MonitorID)
		if errors.Is(err, monitors.ErrNotFound) {
			r.logger.Info("monitor deleted mid-scan, cancelling", "monitor_id", args.MonitorID)
			return r.ledger.RefundScan(ctx, args.UserID, args.MonitorID, models.ScanCost)
		}
		if err == nil && status != models.MonitorStatusActive {
			return nil // settled elsewhere
		}

		polled, err := r.provider.PollStatus(ctx, jobID)
		if err != nil {
			// Transient poll failures don't kill the run; the next tick
			// asks again.
			r.logger.Warn("poll failed", "monitor_id", args.MonitorID, "attempt", attempt, "error", err)
			continue
		}
		if polled.Done {
			return r.settle(ctx, args, polled.Results)
		}
		if attempt%6 == 0 {
			r.say(ctx, args.MonitorID, fmt.Sprintf("Still searching (%s elapsed)", (time.Duration(attempt)*r.PollInterval).Round(time.Second)))
		}
	}

	// Ceiling reached. One reconciliation poll catches a job that finished
	// just after the last tick; otherwise refund so the user stays whole.
	if polled, err := r.provider.PollStatus(ctx, jobID); err == nil && polled.Done {
		return r.settle(ctx, args, polled.Results)
	}
	r.logger.Error("scan timed out", "monitor_id", args.MonitorID, "job_id", jobID, "attempts", r.MaxAttempts)
	r.say(ctx, args.MonitorID, "Search timed out, refunding credits")
	return r.compensate(ctx, args, models.ScanOutcomeTimedOut)
}

// settle classifies the provider results and pays out or refunds.
func (r *Runner) settle(ctx context.Context, args ScanJobArgs, results []provider.RawBusiness) error {
	if len(results) == 0 {
		r.say(ctx, args.MonitorID, "Provider returned no businesses ("+models.ZeroReasonNoData+"), refunding credits")
		return r.compensate(ctx, args, models.ScanOutcomeZeroResults)
	}
	r.say(ctx, args.MonitorID, fmt.Sprintf("Provider returned %d businesses, classifying", len(results)))

	var leads []models.Lead
	for _, raw := range results {
		if lead, ok := classifier.Classify(raw); ok {
			leads = append(leads, lead)
		}
	}
	if len(leads) == 0 {
		// Healthy market: every business was doing fine.
		r.say(ctx, args.MonitorID, "No sales opportunities found ("+models.ZeroReasonMarketSaturated+"), refunding credits")
		return r.compensate(ctx, args, models.ScanOutcomeZeroResults)
	}

	// Merge before the settlement write; it is idempotent under retry.
	inserted, linked, err := r.merger.Merge(ctx, args.UserID, leads)
	if err != nil {
		r.logger.Error("lead merge failed", "monitor_id", args.MonitorID, "error", err)
		r.say(ctx, args.MonitorID, "Failed to save leads, refunding credits")
		return r.compensate(ctx, args, models.ScanOutcomeFailed)
	}

	r.logger.Info("scan complete",
		"monitor_id", args.MonitorID,
		"raw", len(results),
		"qualified", len(leads),
		"inserted", inserted,
		"linked", linked,
	)
	r.say(ctx, args.MonitorID, fmt.Sprintf("Scan complete: %d leads qualified, %d new to your list", len(leads), linked))
	return r.finish(ctx, args, models.ScanOutcomeSuccess, false)
}

// compensate refunds the scan charge and pauses the monitor with the given
// outcome, in one transaction.
func (r *Runner) compensate(ctx context.Context, args ScanJobArgs, outcome string) error {
	return r.finish(ctx, args, outcome, true)
}

// finish records the terminal outcome, optionally with the refund, in a
// single transaction guarded on the monitor still being active. The guard is
// what makes a retried job safe: once any attempt commits here, every later
// attempt sees the pause and walks away without touching the ledger.
func (r *Runner) finish(ctx context.Context, args ScanJobArgs, outcome string, refund bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	settled, err := r.monitors.SettleTx(ctx, tx, args.MonitorID, outcome)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if !settled {
		return nil
	}
	if refund {
		if err := r.ledger.RefundScanTx(ctx, tx, args.UserID, args.MonitorID, models.ScanCost); err != nil {
			return fmt.Errorf("refund scan: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// say appends to the monitor's live event stream. Stream failures are logged
// and swallowed; activity lines are best-effort.
func (r *Runner) say(ctx context.Context, monitorID uuid.UUID, message string) {
	if err := r.events.Append(ctx, monitorID, message); err != nil {
		r.logger.Warn("event append failed", "monitor_id", monitorID, "error", err)
	}
}
