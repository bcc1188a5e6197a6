package monitors

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/leadpulse/backend/internal/models"
)

// ErrDuplicate is returned when the user already monitors this keyword/location pair.
var ErrDuplicate = errDuplicate

// ErrNotFound is returned when the monitor does not exist or belongs to another user.
var ErrNotFound = errNotFound

// ErrLimitReached is returned when the user is at the monitor cap.
var ErrLimitReached = errors.New("monitor limit reached")

// Store is the repository surface the service needs; *Repository satisfies it.
type Store interface {
	Create(ctx context.Context, userID uuid.UUID, keyword, location string) (*models.Monitor, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
	GetOwned(ctx context.Context, id, userID uuid.UUID) (*models.Monitor, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Monitor, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, keyword, location string) (*models.Monitor, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*models.Monitor, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Monitor, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

// Create enforces the per-user cap before insert; uniqueness is enforced by
// the store. Both rejections happen before any row is written.
func (s *service) Create(ctx context.Context, userID uuid.UUID, keyword, location string) (*models.Monitor, error) {
	keyword = strings.TrimSpace(keyword)
	location = strings.TrimSpace(location)
	if keyword == "" || location == "" {
		return nil, errors.New("keyword and location are required")
	}

	count, err := s.store.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= models.MaxMonitorsPerUser {
		return nil, ErrLimitReached
	}
	return s.store.Create(ctx, userID, keyword, location)
}

func (s *service) Get(ctx context.Context, id, userID uuid.UUID) (*models.Monitor, error) {
	return s.store.GetOwned(ctx, id, userID)
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]*models.Monitor, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return s.store.Delete(ctx, id, userID)
}
