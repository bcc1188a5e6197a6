// Package ingest merges classified leads into the shared lead dictionary and
// links them to the user whose scan surfaced them. Every step keys on natural
// identifiers with insert-ignore semantics, so a retried merge is a no-op.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/leadpulse/backend/internal/models"
)

// LeadStore is the minimal lead persistence interface the merger needs.
type LeadStore interface {
	// UpsertLeads inserts leads keyed on place_id, ignoring conflicts
	// (first-writer-wins). Returns how many rows were actually inserted.
	UpsertLeads(ctx context.Context, leads []models.Lead) (int, error)
	// IDsByPlaceIDs resolves place IDs to lead row IDs.
	IDsByPlaceIDs(ctx context.Context, placeIDs []string) (map[string]uuid.UUID, error)
	// LinkUser creates locked user_leads links, ignoring existing ones.
	// Returns how many links were actually created.
	LinkUser(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID) (int, error)
}

type Merger struct {
	store LeadStore
}

func NewMerger(store LeadStore) *Merger {
	return &Merger{store: store}
}

// Merge upserts the classified leads and links each one to the user. Existing
// leads are left untouched and existing links keep their unlock state, so
// re-running with the same input produces identical rows.
func (m *Merger) Merge(ctx context.Context, userID uuid.UUID, leads []models.Lead) (inserted, linked int, err error) {
	if len(leads) == 0 {
		return 0, 0, nil
	}

	// A single scan can return the same place twice; keep the first.
	seen := make(map[string]struct{}, len(leads))
	unique := make([]models.Lead, 0, len(leads))
	placeIDs := make([]string, 0, len(leads))
	for _, l := range leads {
		if _, dup := seen[l.PlaceID]; dup {
			continue
		}
		seen[l.PlaceID] = struct{}{}
		unique = append(unique, l)
		placeIDs = append(placeIDs, l.PlaceID)
	}

	inserted, err = m.store.UpsertLeads(ctx, unique)
	if err != nil {
		return 0, 0, fmt.Errorf("upsert leads: %w", err)
	}

	idsByPlace, err := m.store.IDsByPlaceIDs(ctx, placeIDs)
	if err != nil {
		return inserted, 0, fmt.Errorf("resolve lead ids: %w", err)
	}
	leadIDs := make([]uuid.UUID, 0, len(idsByPlace))
	for _, placeID := range placeIDs {
		if id, ok := idsByPlace[placeID]; ok {
			leadIDs = append(leadIDs, id)
		}
	}

	linked, err = m.store.LinkUser(ctx, userID, leadIDs)
	if err != nil {
		return inserted, 0, fmt.Errorf("link user leads: %w", err)
	}
	return inserted, linked, nil
}
