package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/monitors"
	"github.com/leadpulse/backend/internal/provider"
	"github.com/leadpulse/backend/internal/scanlog"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// fakeProvider serves a scripted sequence of poll responses.
type fakeProvider struct {
	mu         sync.Mutex
	startErr   error
	starts     int
	polls      []pollStep
	pollsTaken int
}

type pollStep struct {
	status *provider.Status
	err    error
}

func (f *fakeProvider) StartJob(context.Context, string, string, int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return "", f.startErr
	}
	return "job-123", nil
}

func (f *fakeProvider) PollStatus(context.Context, string) (*provider.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollsTaken++
	if len(f.polls) == 0 {
		return &provider.Status{Done: false}, nil
	}
	step := f.polls[0]
	if len(f.polls) > 1 {
		f.polls = f.polls[1:]
	}
	return step.status, step.err
}

// fakeMonitors mirrors the status guard of the real settlement: SettleTx only
// flips an active monitor, and reports false once it is already paused. An
// empty status means the row is gone.
type fakeMonitors struct {
	mu        sync.Mutex
	status    string
	outcome   string
	settleErr error // returned by the next SettleTx call, then cleared
}

func activeMonitor() *fakeMonitors {
	return &fakeMonitors{status: models.MonitorStatusActive}
}

func (f *fakeMonitors) Status(context.Context, uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == "" {
		return "", monitors.ErrNotFound
	}
	return f.status, nil
}

func (f *fakeMonitors) SettleTx(_ context.Context, _ pgx.Tx, _ uuid.UUID, outcome string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settleErr != nil {
		err := f.settleErr
		f.settleErr = nil
		return false, err
	}
	if f.status != models.MonitorStatusActive {
		return false, nil
	}
	f.status = models.MonitorStatusPaused
	f.outcome = outcome
	return true, nil
}

func (f *fakeMonitors) recorded() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome
}

type fakeRefunder struct {
	mu       sync.Mutex
	refunded int
}

func (f *fakeRefunder) RefundScan(_ context.Context, _, _ uuid.UUID, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded += amount
	return nil
}

func (f *fakeRefunder) RefundScanTx(_ context.Context, _ pgx.Tx, _, _ uuid.UUID, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded += amount
	return nil
}

func (f *fakeRefunder) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunded
}

type fakeMerger struct {
	mu    sync.Mutex
	leads []models.Lead
	err   error
}

func (f *fakeMerger) Merge(_ context.Context, _ uuid.UUID, leads []models.Lead) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	f.leads = append(f.leads, leads...)
	return len(leads), len(leads), nil
}

func newTestRunner(p *fakeProvider, m *fakeMonitors, l *fakeRefunder, mg *fakeMerger, sink scanlog.Sink) *Runner {
	r := NewRunner(mockPool{}, p, m, l, mg, sink, discardLogger(), 20)
	r.PollInterval = time.Millisecond
	r.MaxAttempts = 5
	return r
}

func testArgs() ScanJobArgs {
	return ScanJobArgs{
		MonitorID: uuid.New(),
		UserID:    uuid.New(),
		Keyword:   "plumber",
		Location:  "Austin, TX",
	}
}

// unclaimedBiz qualifies as an Unclaimed Business lead.
func unclaimedBiz(placeID string) provider.RawBusiness {
	return provider.RawBusiness{
		PlaceID:        placeID,
		Name:           "Joe's Plumbing",
		BusinessStatus: "OPERATIONAL",
		Rating:         4.8,
		ReviewCount:    120,
		Website:        "https://joesplumbing.example",
		HasPixel:       true,
		Verified:       false,
	}
}

// healthyBiz produces no sales angle and is discarded by the classifier.
func healthyBiz(placeID string) provider.RawBusiness {
	return provider.RawBusiness{
		PlaceID:        placeID,
		Name:           "Ace Plumbing",
		BusinessStatus: "OPERATIONAL",
		Rating:         4.9,
		ReviewCount:    300,
		Website:        "https://aceplumbing.example",
		HasPixel:       true,
		Verified:       true,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// Full happy path: pending twice, then results that qualify.
func TestRunSuccess(t *testing.T) {
	p := &fakeProvider{polls: []pollStep{
		{status: &provider.Status{Done: false}},
		{status: &provider.Status{Done: false}},
		{status: &provider.Status{Done: true, Results: []provider.RawBusiness{
			unclaimedBiz("p1"), unclaimedBiz("p2"), healthyBiz("p3"),
		}}},
	}}
	m := activeMonitor()
	l := &fakeRefunder{}
	mg := &fakeMerger{}
	sink := scanlog.NewMemorySink()

	if err := newTestRunner(p, m, l, mg, sink).Run(context.Background(), testArgs()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.recorded() != models.ScanOutcomeSuccess {
		t.Errorf("outcome = %q, want success", m.recorded())
	}
	if l.total() != 0 {
		t.Errorf("refunded %d credits on a successful run", l.total())
	}
	if len(mg.leads) != 2 {
		t.Errorf("merged %d leads, want 2 (healthy business must be discarded)", len(mg.leads))
	}
}

// Provider returns nothing at all: refund and report NO_DATA.
func TestRunZeroResultsNoData(t *testing.T) {
	p := &fakeProvider{polls: []pollStep{
		{status: &provider.Status{Done: true}},
	}}
	m := activeMonitor()
	l := &fakeRefunder{}
	sink := scanlog.NewMemorySink()

	args := testArgs()
	if err := newTestRunner(p, m, l, &fakeMerger{}, sink).Run(context.Background(), args); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.recorded() != models.ScanOutcomeZeroResults {
		t.Errorf("outcome = %q, want zero_results", m.recorded())
	}
	if l.total() != models.ScanCost {
		t.Errorf("refunded = %d, want %d", l.total(), models.ScanCost)
	}
	assertEventContains(t, sink, args.MonitorID, models.ZeroReasonNoData)
}

// Provider returns businesses but none has a sales angle: MARKET_SATURATED.
func TestRunZeroResultsMarketSaturated(t *testing.T) {
	p := &fakeProvider{polls: []pollStep{
		{status: &provider.Status{Done: true, Results: []provider.RawBusiness{
			healthyBiz("p1"), healthyBiz("p2"),
		}}},
	}}
	m := activeMonitor()
	l := &fakeRefunder{}
	sink := scanlog.NewMemorySink()

	args := testArgs()
	if err := newTestRunner(p, m, l, &fakeMerger{}, sink).Run(context.Background(), args); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.recorded() != models.ScanOutcomeZeroResults {
		t.Errorf("outcome = %q, want zero_results", m.recorded())
	}
	if l.total() != models.ScanCost {
		t.Errorf("refunded = %d, want %d", l.total(), models.ScanCost)
	}
	assertEventContains(t, sink, args.MonitorID, models.ZeroReasonMarketSaturated)
}

// Submission fails outright: refund, pause, no polling.
func TestRunStartJobFailureCompensates(t *testing.T) {
	p := &fakeProvider{startErr: provider.ErrNoJobID}
	m := activeMonitor()
	l := &fakeRefunder{}

	if err := newTestRunner(p, m, l, &fakeMerger{}, scanlog.NewMemorySink()).Run(context.Background(), testArgs()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.recorded() != models.ScanOutcomeFailed {
		t.Errorf("outcome = %q, want failed", m.recorded())
	}
	if l.total() != models.ScanCost {
		t.Errorf("refunded = %d, want %d", l.total(), models.ScanCost)
	}
	if p.pollsTaken != 0 {
		t.Errorf("polled %d times after a failed submit", p.pollsTaken)
	}
}

// Poll ceiling reached while the job stays pending: one reconciliation poll,
// then refund and timed_out.
func TestRunTimeoutRefunds(t *testing.T) {
	p := &fakeProvider{} // always pending
	m := activeMonitor()
	l := &fakeRefunder{}

	if err := newTestRunner(p, m, l, &fakeMerger{}, scanlog.NewMemorySink()).Run(context.Background(), testArgs()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.recorded() != models.ScanOutcomeTimedOut {
		t.Errorf("outcome = %q, want timed_out", m.recorded())
	}
	if l.total() != models.ScanCost {
		t.Errorf("refunded = %d, want %d", l.total(), models.ScanCost)
	}
	// 5 loop polls plus the reconciliation poll.
	if p.pollsTaken != 6 {
		t.Errorf("pollsTaken = %d, want 6", p.pollsTaken)
	}
}

// The job finishes in the window between the last tick and the ceiling: the
// reconciliation poll must still pay out instead of refunding.
func TestRunTimeoutReconciliationCatchesLateFinish(t *testing.T) {
	p := &fakeProvider{polls: []pollStep{
		{status: &provider.Status{Done: false}},
		{status: &provider.Status{Done: false}},
		{status: &provider.Status{Done: false}},
		{status: &provider.Status{Done: false}},
		{status: &provider.Status{Done: false}},
		{status: &provider.Status{Done: true, Results: []provider.RawBusiness{unclaimedBiz("p1")}}},
	}}
	m := activeMonitor()
	l := &fakeRefunder{}
	mg := &fakeMerger{}

	if err := newTestRunner(p, m, l, mg, scanlog.NewMemorySink()).Run(context.Background(), testArgs()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.recorded() != models.ScanOutcomeSuccess {
		t.Errorf("outcome = %q, want success", m.recorded())
	}
	if l.total() != 0 {
		t.Errorf("refunded %d credits despite the late finish", l.total())
	}
	if len(mg.leads) != 1 {
		t.Errorf("merged %d leads, want 1", len(mg.leads))
	}
}

// Monitor deleted before the job ran: the charge comes back without touching
// the provider.
func TestRunCancelledWhenMonitorDeleted(t *testing.T) {
	p := &fakeProvider{} // always pending
	m := &fakeMonitors{} // row gone
	l := &fakeRefunder{}

	if err := newTestRunner(p, m, l, &fakeMerger{}, scanlog.NewMemorySink()).Run(context.Background(), testArgs()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if l.total() != models.ScanCost {
		t.Errorf("refunded = %d, want %d", l.total(), models.ScanCost)
	}
	if p.starts != 0 || p.pollsTaken != 0 {
		t.Errorf("touched the provider (%d starts, %d polls) for a deleted monitor", p.starts, p.pollsTaken)
	}
}

// Transient poll errors are tolerated; the run still completes.
func TestRunSurvivesPollErrors(t *testing.T) {
	p := &fakeProvider{polls: []pollStep{
		{err: errors.New("connection reset")},
		{err: errors.New("502 bad gateway")},
		{status: &provider.Status{Done: true, Results: []provider.RawBusiness{unclaimedBiz("p1")}}},
	}}
	m := activeMonitor()
	l := &fakeRefunder{}
	mg := &fakeMerger{}

	if err := newTestRunner(p, m, l, mg, scanlog.NewMemorySink()).Run(context.Background(), testArgs()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.recorded() != models.ScanOutcomeSuccess {
		t.Errorf("outcome = %q, want success", m.recorded())
	}
	if len(mg.leads) != 1 {
		t.Errorf("merged %d leads, want 1", len(mg.leads))
	}
}

// Merge failure is an orchestration error: the user must not pay for leads
// that never landed.
func TestRunMergeFailureCompensates(t *testing.T) {
	p := &fakeProvider{polls: []pollStep{
		{status: &provider.Status{Done: true, Results: []provider.RawBusiness{unclaimedBiz("p1")}}},
	}}
	m := activeMonitor()
	l := &fakeRefunder{}
	mg := &fakeMerger{err: errors.New("db down")}

	if err := newTestRunner(p, m, l, mg, scanlog.NewMemorySink()).Run(context.Background(), testArgs()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.recorded() != models.ScanOutcomeFailed {
		t.Errorf("outcome = %q, want failed", m.recorded())
	}
	if l.total() != models.ScanCost {
		t.Errorf("refunded = %d, want %d", l.total(), models.ScanCost)
	}
}

// A settlement write that fails once must leave the refund uncommitted, so
// the queue's retry pays back exactly one scan charge in total.
func TestRunRetryAfterSettleErrorRefundsOnce(t *testing.T) {
	m := activeMonitor()
	m.settleErr = errors.New("connection closed")
	l := &fakeRefunder{}
	args := testArgs()

	p := &fakeProvider{polls: []pollStep{{status: &provider.Status{Done: true}}}}
	if err := newTestRunner(p, m, l, &fakeMerger{}, scanlog.NewMemorySink()).Run(context.Background(), args); err == nil {
		t.Fatal("expected an error from the failed settlement")
	}
	if l.total() != 0 {
		t.Errorf("refunded %d before the settlement committed", l.total())
	}

	// The queue re-runs the job. Same zero-result outcome, one refund.
	p = &fakeProvider{polls: []pollStep{{status: &provider.Status{Done: true}}}}
	if err := newTestRunner(p, m, l, &fakeMerger{}, scanlog.NewMemorySink()).Run(context.Background(), args); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if l.total() != models.ScanCost {
		t.Errorf("refunded = %d across both attempts, want exactly %d", l.total(), models.ScanCost)
	}
	if m.recorded() != models.ScanOutcomeZeroResults {
		t.Errorf("outcome = %q, want zero_results", m.recorded())
	}
}

// A retried job that finds its scan already settled must not resubmit to the
// provider or move the ledger again.
func TestRunAlreadySettledIsNoOp(t *testing.T) {
	m := activeMonitor()
	l := &fakeRefunder{}
	args := testArgs()

	p := &fakeProvider{polls: []pollStep{{status: &provider.Status{Done: true}}}}
	if err := newTestRunner(p, m, l, &fakeMerger{}, scanlog.NewMemorySink()).Run(context.Background(), args); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if l.total() != models.ScanCost {
		t.Fatalf("refunded = %d after first run, want %d", l.total(), models.ScanCost)
	}

	p = &fakeProvider{polls: []pollStep{{status: &provider.Status{Done: true}}}}
	if err := newTestRunner(p, m, l, &fakeMerger{}, scanlog.NewMemorySink()).Run(context.Background(), args); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if l.total() != models.ScanCost {
		t.Errorf("refunded = %d after the retry, want %d (single refund)", l.total(), models.ScanCost)
	}
	if p.starts != 0 || p.pollsTaken != 0 {
		t.Errorf("retry touched the provider (%d starts, %d polls)", p.starts, p.pollsTaken)
	}
}

func assertEventContains(t *testing.T, sink scanlog.Sink, monitorID uuid.UUID, substr string) {
	t.Helper()
	lines, err := sink.Recent(context.Background(), monitorID)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return
		}
	}
	t.Errorf("no event line contains %q; got %v", substr, lines)
}
