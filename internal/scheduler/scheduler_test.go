package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/models"
)

type fakeLister struct {
	monitors []*models.Monitor
	err      error
}

func (f *fakeLister) ListPaused(context.Context) ([]*models.Monitor, error) {
	return f.monitors, f.err
}

type fakeDispatcher struct {
	started []uuid.UUID
	errFor  map[uuid.UUID]error
}

func (f *fakeDispatcher) Start(_ context.Context, _, monitorID uuid.UUID) error {
	if err := f.errFor[monitorID]; err != nil {
		return err
	}
	f.started = append(f.started, monitorID)
	return nil
}

func pausedMonitor() *models.Monitor {
	return &models.Monitor{ID: uuid.New(), UserID: uuid.New(), Status: models.MonitorStatusPaused}
}

func TestSweepDispatchesAllPaused(t *testing.T) {
	a, b := pausedMonitor(), pausedMonitor()
	d := &fakeDispatcher{}
	s := New(&fakeLister{monitors: []*models.Monitor{a, b}}, d, "@weekly", nil)

	s.Sweep(context.Background())
	if len(d.started) != 2 {
		t.Errorf("dispatched %d scans, want 2", len(d.started))
	}
}

// One broke user must not stop the rest of the sweep.
func TestSweepSkipsBrokeUsers(t *testing.T) {
	a, b, c := pausedMonitor(), pausedMonitor(), pausedMonitor()
	d := &fakeDispatcher{errFor: map[uuid.UUID]error{
		b.ID: ledger.ErrInsufficientCredits,
	}}
	s := New(&fakeLister{monitors: []*models.Monitor{a, b, c}}, d, "@weekly", nil)

	s.Sweep(context.Background())
	if len(d.started) != 2 {
		t.Errorf("dispatched %d scans, want 2", len(d.started))
	}
	for _, id := range d.started {
		if id == b.ID {
			t.Error("broke user's monitor must be skipped")
		}
	}
}

func TestSweepToleratesListFailure(t *testing.T) {
	d := &fakeDispatcher{}
	s := New(&fakeLister{err: errors.New("db down")}, d, "@weekly", nil)

	s.Sweep(context.Background())
	if len(d.started) != 0 {
		t.Errorf("dispatched %d scans after a list failure", len(d.started))
	}
}
