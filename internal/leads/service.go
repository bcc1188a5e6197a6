package leads

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/models"
)

// ErrLinkNotFound is returned when the lead is not linked to the caller.
var ErrLinkNotFound = errLinkNotFound

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the repository surface the unlock service needs.
type Store interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*View, error)
	LockedLeadIDs(ctx context.Context, tx pgx.Tx, userID uuid.UUID, leadIDs []uuid.UUID) ([]uuid.UUID, error)
	HasLink(ctx context.Context, tx pgx.Tx, userID, leadID uuid.UUID) (bool, error)
	UnlockTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, leadIDs []uuid.UUID) error
	UnlinkAllByUser(ctx context.Context, userID uuid.UUID) error
}

// MonitorWiper is the slice of the monitor registry the clear-all path needs.
type MonitorWiper interface {
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	pool     TxBeginner
	store    Store
	ledger   ledger.Service
	monitors MonitorWiper
}

func NewService(pool TxBeginner, store Store, ledgerSvc ledger.Service, monitors MonitorWiper) *Service {
	return &Service{pool: pool, store: store, ledger: ledgerSvc, monitors: monitors}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*View, error) {
	return s.store.ListByUser(ctx, userID)
}

// Unlock flips one link and charges a single credit, atomically. Unlocking a
// lead that is already unlocked is a free no-op.
func (s *Service) Unlock(ctx context.Context, userID, leadID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	has, err := s.store.HasLink(ctx, tx, userID, leadID)
	if err != nil {
		return err
	}
	if !has {
		return ErrLinkNotFound
	}

	locked, err := s.store.LockedLeadIDs(ctx, tx, userID, []uuid.UUID{leadID})
	if err != nil {
		return err
	}
	if len(locked) == 0 {
		return nil // already unlocked, nothing to charge
	}

	if err := s.ledger.ChargeUnlock(ctx, tx, userID, models.UnlockCost); err != nil {
		return err
	}
	if err := s.store.UnlockTx(ctx, tx, userID, locked); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UnlockAll unlocks every still-locked lead in the batch for one credit each,
// all-or-nothing: if the balance cannot cover the whole batch nothing unlocks.
func (s *Service) UnlockAll(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	locked, err := s.store.LockedLeadIDs(ctx, tx, userID, leadIDs)
	if err != nil {
		return 0, err
	}
	if len(locked) == 0 {
		return 0, nil
	}

	if err := s.ledger.ChargeUnlock(ctx, tx, userID, len(locked)*models.UnlockCost); err != nil {
		return 0, err
	}
	if err := s.store.UnlockTx(ctx, tx, userID, locked); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(locked), nil
}

// ClearAll drops the caller's links and monitors. Leads stay in the shared
// dictionary for other users.
func (s *Service) ClearAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.UnlinkAllByUser(ctx, userID); err != nil {
		return fmt.Errorf("unlink leads: %w", err)
	}
	if err := s.monitors.DeleteAllByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete monitors: %w", err)
	}
	return nil
}
