package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// BalanceSource is the ledger surface the gate reads. It is satisfied by the
// ledger service.
type BalanceSource interface {
	ResetIfNewBillingPeriod(ctx context.Context, userID uuid.UUID) error
	GetBalance(ctx context.Context, userID uuid.UUID) (credits, scansThisMonth int, err error)
}

// CreditGate rejects requests early when the authenticated user cannot afford
// cost. Purely a fast-fail UX guard: the ledger's atomic conditional charge
// remains the source of truth, so a stale read here can never over-spend.
//
// The billing rollover runs before the balance read. Without it a dormant
// user whose period lapsed would be bounced on a balance their next grant
// already covers.
func CreditGate(ledger BalanceSource, cost int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromCtx(r.Context())
			if userID == uuid.Nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			if err := ledger.ResetIfNewBillingPeriod(r.Context(), userID); err != nil {
				http.Error(w, `{"error":"failed to check balance"}`, http.StatusInternalServerError)
				return
			}
			balance, _, err := ledger.GetBalance(r.Context(), userID)
			if err != nil {
				http.Error(w, `{"error":"failed to check balance"}`, http.StatusInternalServerError)
				return
			}
			if balance < cost {
				http.Error(w, fmt.Sprintf(`{"error":"insufficient credits: have %d, need %d"}`, balance, cost), http.StatusPaymentRequired)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
