// Package router assembles the /api/v1 surface. Everything except register
// and login sits behind the bearer-token middleware; the two credit-spending
// endpoints additionally pass the fast-fail credit gate.
package router

import (
	"net/http"

	"github.com/leadpulse/backend/internal/auth"
	"github.com/leadpulse/backend/internal/leads"
	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/middleware"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/monitors"
	"github.com/leadpulse/backend/internal/scan"
)

type Handlers struct {
	Auth     *auth.Handler
	Monitors *monitors.Handler
	Scan     *scan.Handler
	Leads    *leads.Handler
	Ledger   *ledger.Handler
}

// New returns an http.Handler serving the API under /api/v1.
func New(h Handlers, validator middleware.TokenValidator, balances middleware.BalanceSource) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.RequireUser(validator)
	scanGate := middleware.CreditGate(balances, models.ScanCost)
	unlockGate := middleware.CreditGate(balances, models.UnlockCost)

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)
	mux.Handle("GET "+base+"/auth/me", authed(http.HandlerFunc(h.Auth.Me)))

	mux.Handle("POST "+base+"/monitors", authed(http.HandlerFunc(h.Monitors.Create)))
	mux.Handle("GET "+base+"/monitors", authed(http.HandlerFunc(h.Monitors.List)))
	mux.Handle("DELETE "+base+"/monitors/{id}", authed(http.HandlerFunc(h.Monitors.Delete)))
	mux.Handle("POST "+base+"/monitors/{id}/scan", authed(scanGate(http.HandlerFunc(h.Scan.Start))))
	mux.Handle("GET "+base+"/monitors/{id}/events", authed(http.HandlerFunc(h.Scan.Events)))

	mux.Handle("GET "+base+"/leads", authed(http.HandlerFunc(h.Leads.List)))
	mux.Handle("POST "+base+"/leads/{id}/unlock", authed(unlockGate(http.HandlerFunc(h.Leads.Unlock))))
	mux.Handle("POST "+base+"/leads/unlock-all", authed(http.HandlerFunc(h.Leads.UnlockAll)))
	mux.Handle("DELETE "+base+"/leads", authed(http.HandlerFunc(h.Leads.Clear)))

	mux.Handle("GET "+base+"/credits", authed(http.HandlerFunc(h.Ledger.Balance)))
	mux.Handle("GET "+base+"/credits/history", authed(http.HandlerFunc(h.Ledger.History)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}
