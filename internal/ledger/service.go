package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadpulse/backend/internal/models"
)

type Service interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (credits, scansThisMonth int, err error)
	ChargeScan(ctx context.Context, tx pgx.Tx, userID, monitorID uuid.UUID, amount int) error
	RefundScan(ctx context.Context, userID, monitorID uuid.UUID, amount int) error
	RefundScanTx(ctx context.Context, tx pgx.Tx, userID, monitorID uuid.UUID, amount int) error
	ChargeUnlock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) error
	ResetIfNewBillingPeriod(ctx context.Context, userID uuid.UUID) error
	ListEvents(ctx context.Context, userID uuid.UUID) ([]*models.CreditEvent, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (int, int, error) {
	return s.repo.GetBalance(ctx, userID)
}

func (s *service) ChargeScan(ctx context.Context, tx pgx.Tx, userID, monitorID uuid.UUID, amount int) error {
	return s.repo.ChargeScan(ctx, tx, userID, monitorID, amount)
}

func (s *service) RefundScan(ctx context.Context, userID, monitorID uuid.UUID, amount int) error {
	return s.repo.RefundScan(ctx, userID, monitorID, amount)
}

func (s *service) RefundScanTx(ctx context.Context, tx pgx.Tx, userID, monitorID uuid.UUID, amount int) error {
	return s.repo.RefundScanTx(ctx, tx, userID, monitorID, amount)
}

func (s *service) ChargeUnlock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) error {
	return s.repo.ChargeUnlock(ctx, tx, userID, amount)
}

func (s *service) ResetIfNewBillingPeriod(ctx context.Context, userID uuid.UUID) error {
	return s.repo.ResetIfNewBillingPeriod(ctx, userID)
}

func (s *service) ListEvents(ctx context.Context, userID uuid.UUID) ([]*models.CreditEvent, error) {
	return s.repo.ListEvents(ctx, userID)
}

// ErrInsufficientCredits is returned when a charge would take the balance negative.
var ErrInsufficientCredits = errInsufficientCredits

// ErrScanLimitReached is returned when the user has exhausted the monthly scan quota.
var ErrScanLimitReached = errScanLimitReached
