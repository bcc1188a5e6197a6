package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadpulse/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new user with the full free-plan allowance and the billing
// clock started at now.
func (r *Repository) Create(ctx context.Context, email, passwordHash, name string) (*models.User, error) {
	var u models.User
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, credits, scans_this_month, billing_start_date)
		VALUES ($1, $2, $3, $4, $5, 0, now())
		RETURNING id, email, name, credits, scans_this_month, billing_start_date, created_at, updated_at
	`, uuid.New(), email, passwordHash, name, models.MonthlyCredits)
	if err := scanUser(row, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns the user and password hash for login. Returns (nil, "",
// nil) when the email is unknown so callers can fold it into one
// invalid-credentials path.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, string, error) {
	var u models.User
	var hash string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, name, credits, scans_this_month, billing_start_date, created_at, updated_at, password_hash
		FROM users WHERE email = $1
	`, email)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Credits, &u.ScansThisMonth, &u.BillingStart, &u.CreatedAt, &u.UpdatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &u, hash, nil
}

// GetByID returns the user's profile, balance included.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, name, credits, scans_this_month, billing_start_date, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	if err := scanUser(row, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUser(row pgx.Row, u *models.User) error {
	return row.Scan(&u.ID, &u.Email, &u.Name, &u.Credits, &u.ScansThisMonth, &u.BillingStart, &u.CreatedAt, &u.UpdatedAt)
}
