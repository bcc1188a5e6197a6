package leads

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadpulse/backend/internal/models"
)

var errLinkNotFound = errors.New("lead is not linked to this user")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// UpsertLeads inserts into the shared dictionary keyed on place_id.
// First-writer-wins: conflicts leave the existing row untouched.
func (r *Repository) UpsertLeads(ctx context.Context, list []models.Lead) (int, error) {
	inserted := 0
	for _, l := range list {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO leads (
				id, place_id, business_name, rating, review_count, one_star_count,
				website, phone, email, owner_name, website_builder, has_pixel,
				verified, bucket_category, bucket_details, business_status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (place_id) DO NOTHING
		`, uuid.New(), l.PlaceID, l.BusinessName, l.Rating, l.ReviewCount, l.OneStarCount,
			l.Website, l.Phone, l.Email, l.OwnerName, l.WebsiteBuilder, l.HasPixel,
			l.Verified, l.BucketCategory, l.BucketDetails, l.BusinessStatus)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// IDsByPlaceIDs resolves place IDs to lead row IDs.
func (r *Repository) IDsByPlaceIDs(ctx context.Context, placeIDs []string) (map[string]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, place_id FROM leads WHERE place_id = ANY($1)
	`, placeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]uuid.UUID, len(placeIDs))
	for rows.Next() {
		var id uuid.UUID
		var placeID string
		if err := rows.Scan(&id, &placeID); err != nil {
			return nil, err
		}
		out[placeID] = id
	}
	return out, rows.Err()
}

// LinkUser creates locked links for leads new to this user. Existing links
// keep their unlock state, so a re-scan never re-locks anything.
func (r *Repository) LinkUser(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID) (int, error) {
	linked := 0
	for _, leadID := range leadIDs {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO user_leads (user_id, lead_id, is_unlocked)
			VALUES ($1, $2, FALSE)
			ON CONFLICT (user_id, lead_id) DO NOTHING
		`, userID, leadID)
		if err != nil {
			return linked, err
		}
		linked += int(tag.RowsAffected())
	}
	return linked, nil
}

// View is a shared lead merged with the caller's unlock state. Contact fields
// are stripped while the lead is still locked.
type View struct {
	models.Lead
	IsUnlocked bool `json:"is_unlocked"`
}

// ListByUser returns every lead linked to the user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*View, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.place_id, l.business_name, l.rating, l.review_count, l.one_star_count,
			l.website, l.phone, l.email, l.owner_name, l.website_builder, l.has_pixel,
			l.verified, l.bucket_category, l.bucket_details, l.business_status, l.created_at,
			ul.is_unlocked
		FROM user_leads ul
		JOIN leads l ON l.id = ul.lead_id
		WHERE ul.user_id = $1
		ORDER BY ul.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*View
	for rows.Next() {
		var v View
		err := rows.Scan(&v.ID, &v.PlaceID, &v.BusinessName, &v.Rating, &v.ReviewCount, &v.OneStarCount,
			&v.Website, &v.Phone, &v.Email, &v.OwnerName, &v.WebsiteBuilder, &v.HasPixel,
			&v.Verified, &v.BucketCategory, &v.BucketDetails, &v.BusinessStatus, &v.CreatedAt,
			&v.IsUnlocked)
		if err != nil {
			return nil, err
		}
		list = append(list, &v)
	}
	return list, rows.Err()
}

// LockedLeadIDs locks the user's link rows for the given leads and returns
// those still locked. Call within a transaction; the FOR UPDATE keeps a
// concurrent unlock from double-charging.
func (r *Repository) LockedLeadIDs(ctx context.Context, tx pgx.Tx, userID uuid.UUID, leadIDs []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		SELECT lead_id FROM user_leads
		WHERE user_id = $1 AND lead_id = ANY($2) AND is_unlocked = FALSE
		FOR UPDATE
	`, userID, leadIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// HasLink reports whether a link row exists for (user, lead).
func (r *Repository) HasLink(ctx context.Context, tx pgx.Tx, userID, leadID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_leads WHERE user_id = $1 AND lead_id = $2)
	`, userID, leadID).Scan(&exists)
	return exists, err
}

// UnlockTx flips the unlock flag inside the caller's transaction.
func (r *Repository) UnlockTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, leadIDs []uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE user_leads SET is_unlocked = TRUE
		WHERE user_id = $1 AND lead_id = ANY($2)
	`, userID, leadIDs)
	return err
}

// UnlinkAllByUser drops all of the user's links. Shared lead rows stay.
func (r *Repository) UnlinkAllByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_leads WHERE user_id = $1`, userID)
	return err
}
