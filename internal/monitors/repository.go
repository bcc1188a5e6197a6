package monitors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadpulse/backend/internal/models"
)

var (
	errDuplicate = errors.New("monitor already exists for this keyword and location")
	errNotFound  = errors.New("monitor not found")
)

const monitorColumns = `id, user_id, keyword, location, status, last_scan_at, last_outcome, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a paused monitor. The unique constraint on
// (user_id, keyword, location) is the duplicate guard.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, keyword, location string) (*models.Monitor, error) {
	var m models.Monitor
	row := r.pool.QueryRow(ctx, `
		INSERT INTO monitors (id, user_id, keyword, location, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+monitorColumns+`
	`, uuid.New(), userID, keyword, location, models.MonitorStatusPaused)
	if err := scanMonitor(row, &m); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, errDuplicate
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM monitors WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

// GetOwned returns the monitor only if it belongs to userID.
func (r *Repository) GetOwned(ctx context.Context, id, userID uuid.UUID) (*models.Monitor, error) {
	var m models.Monitor
	row := r.pool.QueryRow(ctx, `
		SELECT `+monitorColumns+` FROM monitors WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err := scanMonitor(row, &m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Monitor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitors WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Monitor
	for rows.Next() {
		var m models.Monitor
		if err := scanMonitor(rows, &m); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// ListPaused returns every paused monitor across all users, for the weekly
// auto-scan sweep.
func (r *Repository) ListPaused(ctx context.Context) ([]*models.Monitor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitors WHERE status = $1 ORDER BY created_at
	`, models.MonitorStatusPaused)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Monitor
	for rows.Next() {
		var m models.Monitor
		if err := scanMonitor(rows, &m); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// Delete removes the monitor row only. Leads live in the shared dictionary
// and are never touched here.
func (r *Repository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

// DeleteAllByUser clears every monitor the user owns ("clear all" support).
func (r *Repository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM monitors WHERE user_id = $1`, userID)
	return err
}

// Status returns the monitor's current status, or ErrNotFound if the row is
// gone. The scan loop reads this each tick: a deleted monitor cancels its own
// scan, and a paused one means the run was already settled.
func (r *Repository) Status(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM monitors WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errNotFound
	}
	return status, err
}

// SetStatusTx flips the monitor status inside the caller's transaction.
func (r *Repository) SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE monitors SET status = $1 WHERE id = $2`, status, id)
	return err
}

// SettleTx pauses the monitor and stamps the terminal scan result inside the
// caller's transaction, but only if the monitor is still active. The status
// guard makes settlement exactly-once: a retried scan job that finds the row
// already paused gets false back and must not compensate again.
func (r *Repository) SettleTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, outcome string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE monitors SET status = $1, last_scan_at = now(), last_outcome = $2
		WHERE id = $3 AND status = $4
	`, models.MonitorStatusPaused, outcome, id, models.MonitorStatusActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner, m *models.Monitor) error {
	return row.Scan(&m.ID, &m.UserID, &m.Keyword, &m.Location, &m.Status, &m.LastScanAt, &m.LastOutcome, &m.CreatedAt)
}
