package leads

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/middleware"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// List handles GET /api/v1/leads. Contact details are masked until unlocked.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.log.Error("list leads failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	for _, v := range list {
		if !v.IsUnlocked {
			v.Email = nil
			v.Phone = nil
			v.OwnerName = nil
		}
	}
	if list == nil {
		list = []*View{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Unlock handles POST /api/v1/leads/{id}/unlock.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	leadID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid lead id"}`, http.StatusBadRequest)
		return
	}

	switch err := h.svc.Unlock(r.Context(), userID, leadID); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, ErrLinkNotFound):
		http.Error(w, `{"error":"lead not found"}`, http.StatusNotFound)
	case errors.Is(err, ledger.ErrInsufficientCredits):
		http.Error(w, `{"error":"insufficient credits"}`, http.StatusPaymentRequired)
	default:
		h.log.Error("unlock failed", "user_id", userID, "lead_id", leadID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

type unlockAllRequest struct {
	LeadIDs []uuid.UUID `json:"lead_ids"`
}

// UnlockAll handles POST /api/v1/leads/unlock-all. The charge is
// all-or-nothing across the batch.
func (h *Handler) UnlockAll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req unlockAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	count, err := h.svc.UnlockAll(r.Context(), userID, req.LeadIDs)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			http.Error(w, `{"error":"insufficient credits"}`, http.StatusPaymentRequired)
			return
		}
		h.log.Error("unlock all failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": count})
}

// Clear handles DELETE /api/v1/leads: drops the caller's links and monitors.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if err := h.svc.ClearAll(r.Context(), userID); err != nil {
		h.log.Error("clear leads failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
