package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadpulse/backend/internal/middleware"
	"github.com/leadpulse/backend/internal/models"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type balanceResponse struct {
	Credits        int `json:"credits"`
	ScansThisMonth int `json:"scans_this_month"`
	MonthlyCredits int `json:"monthly_credits"`
	ScanLimit      int `json:"scan_limit"`
}

// Balance handles GET /api/v1/credits. The billing rollover is applied lazily
// here too, so a dormant account shows refreshed numbers on first load.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if err := h.svc.ResetIfNewBillingPeriod(r.Context(), userID); err != nil {
		h.log.Warn("billing rollover failed", "user_id", userID, "error", err)
	}
	credits, scans, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		h.log.Error("balance lookup failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Credits:        credits,
		ScansThisMonth: scans,
		MonthlyCredits: models.MonthlyCredits,
		ScanLimit:      models.MonthlyScanLimit,
	})
}

// History handles GET /api/v1/credits/history: the audit trail of every
// credit movement, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	events, err := h.svc.ListEvents(r.Context(), userID)
	if err != nil {
		h.log.Error("credit events lookup failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*models.CreditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
