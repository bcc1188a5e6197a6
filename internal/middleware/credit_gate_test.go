package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// injectUser pre-sets the user in context, simulating RequireUser upstream.
func injectUser(userID uuid.UUID, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

var gate200 = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// gateLedger applies grantOnReset to the balance when the rollover runs,
// mimicking a lapsed billing period topping the user back up.
type gateLedger struct {
	balance      int
	grantOnReset int
	resets       int
	err          error
}

func (g *gateLedger) ResetIfNewBillingPeriod(context.Context, uuid.UUID) error {
	if g.err != nil {
		return g.err
	}
	g.resets++
	if g.grantOnReset > 0 {
		g.balance = g.grantOnReset
		g.grantOnReset = 0
	}
	return nil
}

func (g *gateLedger) GetBalance(context.Context, uuid.UUID) (int, int, error) {
	if g.err != nil {
		return 0, 0, g.err
	}
	return g.balance, 0, nil
}

func TestCreditGateSufficientBalance(t *testing.T) {
	handler := injectUser(uuid.New(), CreditGate(&gateLedger{balance: 150}, 100)(gate200))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreditGateInsufficientBalance(t *testing.T) {
	handler := injectUser(uuid.New(), CreditGate(&gateLedger{balance: 40}, 100)(gate200))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
}

// A dormant user comes back with 40 credits left and a lapsed billing
// period. The gate must let the rollover grant land before deciding, not
// 402 on the stale balance.
func TestCreditGateAppliesBillingRollover(t *testing.T) {
	led := &gateLedger{balance: 40, grantOnReset: 500}
	handler := injectUser(uuid.New(), CreditGate(led, 100)(gate200))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after rollover, got %d: %s", rec.Code, rec.Body.String())
	}
	if led.resets != 1 {
		t.Errorf("rollover ran %d times, want 1", led.resets)
	}
}

func TestCreditGateNoUser(t *testing.T) {
	handler := CreditGate(&gateLedger{balance: 1000}, 100)(gate200)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreditGateStoreError(t *testing.T) {
	led := &gateLedger{err: errors.New("connection refused")}
	handler := injectUser(uuid.New(), CreditGate(led, 100)(gate200))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
