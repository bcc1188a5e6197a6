package leads

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- Store mock: tracks links and unlock flags. ---

type mockStore struct {
	mu    sync.Mutex
	links map[uuid.UUID]bool // lead -> unlocked, single-user scope
}

func newMockStore(lockedIDs ...uuid.UUID) *mockStore {
	m := &mockStore{links: make(map[uuid.UUID]bool)}
	for _, id := range lockedIDs {
		m.links[id] = false
	}
	return m
}

func (m *mockStore) ListByUser(context.Context, uuid.UUID) ([]*View, error) { return nil, nil }

func (m *mockStore) LockedLeadIDs(_ context.Context, _ pgx.Tx, _ uuid.UUID, leadIDs []uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for _, id := range leadIDs {
		if unlocked, ok := m.links[id]; ok && !unlocked {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockStore) HasLink(_ context.Context, _ pgx.Tx, _ uuid.UUID, leadID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[leadID]
	return ok, nil
}

func (m *mockStore) UnlockTx(_ context.Context, _ pgx.Tx, _ uuid.UUID, leadIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range leadIDs {
		m.links[id] = true
	}
	return nil
}

func (m *mockStore) UnlinkAllByUser(context.Context, uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[uuid.UUID]bool)
	return nil
}

func (m *mockStore) unlocked(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[id]
}

// --- Ledger mock: in-memory balance with the real conditional semantics. ---

type mockLedger struct {
	mu      sync.Mutex
	balance int
	charged int
}

func (m *mockLedger) GetBalance(context.Context, uuid.UUID) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, 0, nil
}

func (m *mockLedger) ChargeScan(context.Context, pgx.Tx, uuid.UUID, uuid.UUID, int) error {
	return errors.New("not used in these tests")
}

func (m *mockLedger) RefundScan(context.Context, uuid.UUID, uuid.UUID, int) error {
	return errors.New("not used in these tests")
}

func (m *mockLedger) RefundScanTx(context.Context, pgx.Tx, uuid.UUID, uuid.UUID, int) error {
	return errors.New("not used in these tests")
}

func (m *mockLedger) ChargeUnlock(_ context.Context, _ pgx.Tx, _ uuid.UUID, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance < amount {
		return ledger.ErrInsufficientCredits
	}
	m.balance -= amount
	m.charged += amount
	return nil
}

func (m *mockLedger) ResetIfNewBillingPeriod(context.Context, uuid.UUID) error { return nil }

func (m *mockLedger) ListEvents(context.Context, uuid.UUID) ([]*models.CreditEvent, error) {
	return nil, nil
}

type mockWiper struct{ called bool }

func (m *mockWiper) DeleteAllByUser(context.Context, uuid.UUID) error {
	m.called = true
	return nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestUnlockChargesOneCredit(t *testing.T) {
	leadID := uuid.New()
	store := newMockStore(leadID)
	led := &mockLedger{balance: 5}
	svc := NewService(mockPool{}, store, led, &mockWiper{})

	if err := svc.Unlock(context.Background(), uuid.New(), leadID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !store.unlocked(leadID) {
		t.Error("lead should be unlocked")
	}
	if led.charged != models.UnlockCost {
		t.Errorf("charged = %d, want %d", led.charged, models.UnlockCost)
	}
}

// Zero balance: the unlock is rejected and the flag stays false.
func TestUnlockInsufficientCredits(t *testing.T) {
	leadID := uuid.New()
	store := newMockStore(leadID)
	led := &mockLedger{balance: 0}
	svc := NewService(mockPool{}, store, led, &mockWiper{})

	err := svc.Unlock(context.Background(), uuid.New(), leadID)
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if store.unlocked(leadID) {
		t.Error("lead must stay locked when the charge fails")
	}
}

func TestUnlockAlreadyUnlockedIsFree(t *testing.T) {
	leadID := uuid.New()
	store := newMockStore(leadID)
	store.links[leadID] = true
	led := &mockLedger{balance: 10}
	svc := NewService(mockPool{}, store, led, &mockWiper{})

	if err := svc.Unlock(context.Background(), uuid.New(), leadID); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if led.charged != 0 {
		t.Errorf("charged = %d, want 0 for an already-unlocked lead", led.charged)
	}
}

func TestUnlockUnknownLead(t *testing.T) {
	svc := NewService(mockPool{}, newMockStore(), &mockLedger{balance: 10}, &mockWiper{})

	err := svc.Unlock(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("err = %v, want ErrLinkNotFound", err)
	}
}

func TestUnlockAllChargesPerLockedLead(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	store := newMockStore(a, b, c)
	store.links[c] = true // already unlocked, should be free
	led := &mockLedger{balance: 10}
	svc := NewService(mockPool{}, store, led, &mockWiper{})

	count, err := svc.UnlockAll(context.Background(), uuid.New(), []uuid.UUID{a, b, c})
	if err != nil {
		t.Fatalf("unlock all: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if led.charged != 2*models.UnlockCost {
		t.Errorf("charged = %d, want %d", led.charged, 2*models.UnlockCost)
	}
}

// Batch bigger than the balance: nothing unlocks.
func TestUnlockAllIsAllOrNothing(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	store := newMockStore(a, b, c)
	led := &mockLedger{balance: 2}
	svc := NewService(mockPool{}, store, led, &mockWiper{})

	_, err := svc.UnlockAll(context.Background(), uuid.New(), []uuid.UUID{a, b, c})
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	for _, id := range []uuid.UUID{a, b, c} {
		if store.unlocked(id) {
			t.Errorf("lead %s should stay locked", id)
		}
	}
}

func TestUnlockAllEmptyBatch(t *testing.T) {
	svc := NewService(mockPool{}, newMockStore(), &mockLedger{balance: 10}, &mockWiper{})
	count, err := svc.UnlockAll(context.Background(), uuid.New(), nil)
	if err != nil || count != 0 {
		t.Errorf("empty batch = (%d, %v), want (0, nil)", count, err)
	}
}

func TestClearAllWipesLinksAndMonitors(t *testing.T) {
	leadID := uuid.New()
	store := newMockStore(leadID)
	wiper := &mockWiper{}
	svc := NewService(mockPool{}, store, &mockLedger{balance: 10}, wiper)

	if err := svc.ClearAll(context.Background(), uuid.New()); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if len(store.links) != 0 {
		t.Error("links should be gone")
	}
	if !wiper.called {
		t.Error("monitors should be wiped")
	}
}
