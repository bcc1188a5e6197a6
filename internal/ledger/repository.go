package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadpulse/backend/internal/models"
)

var (
	errInsufficientCredits = errors.New("insufficient credits")
	errScanLimitReached    = errors.New("monthly scan limit reached")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// GetBalance returns the user's current credits and scan counter.
func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (credits, scansThisMonth int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT credits, scans_this_month FROM users WHERE id = $1
	`, userID).Scan(&credits, &scansThisMonth)
	return credits, scansThisMonth, err
}

// ChargeScan runs inside the caller's transaction. It:
// a) Locks the user row (SELECT FOR UPDATE)
// b) Rejects if scans_this_month >= the monthly limit
// c) Deducts amount via a conditional UPDATE (balance never goes negative)
// d) Increments scans_this_month and records a scan_charge event
func (r *Repository) ChargeScan(ctx context.Context, tx pgx.Tx, userID, monitorID uuid.UUID, amount int) error {
	var scansThisMonth int
	row := tx.QueryRow(ctx, `
		SELECT scans_this_month FROM users WHERE id = $1 FOR UPDATE
	`, userID)
	if err := row.Scan(&scansThisMonth); err != nil {
		return err
	}
	if scansThisMonth >= models.MonthlyScanLimit {
		return errScanLimitReached
	}
	var balanceAfter int
	err := tx.QueryRow(ctx, `
		UPDATE users
		SET credits = credits - $1, scans_this_month = scans_this_month + 1, updated_at = now()
		WHERE id = $2 AND credits >= $1
		RETURNING credits
	`, amount, userID).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return errInsufficientCredits
	}
	if err != nil {
		return err
	}
	return r.insertEvent(ctx, tx, userID, &monitorID, models.CreditEventScanCharge, amount, balanceAfter)
}

// RefundScanTx runs inside the caller's transaction: restores the scan cost
// and rolls the scan counter back by one. Compensation path for failed or
// empty scans; callers pair it with a settlement guard so a retried job can
// never refund the same charge twice.
func (r *Repository) RefundScanTx(ctx context.Context, tx pgx.Tx, userID, monitorID uuid.UUID, amount int) error {
	var balanceAfter int
	err := tx.QueryRow(ctx, `
		UPDATE users
		SET credits = credits + $1, scans_this_month = GREATEST(scans_this_month - 1, 0), updated_at = now()
		WHERE id = $2
		RETURNING credits
	`, amount, userID).Scan(&balanceAfter)
	if err != nil {
		return err
	}
	return r.insertEvent(ctx, tx, userID, &monitorID, models.CreditEventScanRefund, amount, balanceAfter)
}

// RefundScan is the standalone form for paths with no surrounding transaction,
// such as a scan cancelled because its monitor row is already gone.
func (r *Repository) RefundScan(ctx context.Context, userID, monitorID uuid.UUID, amount int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.RefundScanTx(ctx, tx, userID, monitorID, amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ChargeUnlock deducts amount inside the caller's transaction (one credit per
// lead being unlocked). The conditional UPDATE is the all-or-nothing guard for
// batch unlocks.
func (r *Repository) ChargeUnlock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) error {
	var balanceAfter int
	err := tx.QueryRow(ctx, `
		UPDATE users
		SET credits = credits - $1, updated_at = now()
		WHERE id = $2 AND credits >= $1
		RETURNING credits
	`, amount, userID).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return errInsufficientCredits
	}
	if err != nil {
		return err
	}
	return r.insertEvent(ctx, tx, userID, nil, models.CreditEventUnlockCharge, amount, balanceAfter)
}

// ResetIfNewBillingPeriod restores the plan allotment once the user's billing
// period has elapsed. Lazy: evaluated on every scan attempt, never by a cron.
// The WHERE guard makes concurrent calls settle on a single reset.
func (r *Repository) ResetIfNewBillingPeriod(ctx context.Context, userID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var balanceAfter int
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET credits = $1, scans_this_month = 0, billing_start_date = now(), updated_at = now()
		WHERE id = $2 AND billing_start_date <= now() - INTERVAL '1 month'
		RETURNING credits
	`, models.MonthlyCredits, userID).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // period still running
	}
	if err != nil {
		return err
	}
	if err := r.insertEvent(ctx, tx, userID, nil, models.CreditEventPeriodReset, models.MonthlyCredits, balanceAfter); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListEvents returns the user's credit movements, newest first.
func (r *Repository) ListEvents(ctx context.Context, userID uuid.UUID) ([]*models.CreditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, monitor_id, event_type, amount, balance_after, created_at
		FROM credit_events WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditEvent
	for rows.Next() {
		var e models.CreditEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.MonitorID, &e.EventType, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

func (r *Repository) insertEvent(ctx context.Context, tx pgx.Tx, userID uuid.UUID, monitorID *uuid.UUID, eventType string, amount, balanceAfter int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_events (id, user_id, monitor_id, event_type, amount, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), userID, monitorID, eventType, amount, balanceAfter)
	return err
}
