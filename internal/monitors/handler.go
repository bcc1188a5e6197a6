package monitors

import (
	"encoding/json"
	"errors"
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

type createRequest struct {
	Keyword  string `json:"keyword"`
	Location string `json:"location"`
}

// Create handles POST /api/v1/monitors. New monitors start paused; scanning
// is a separate, credit-charged action.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	m, err := h.svc.Create(r.Context(), userID, req.Keyword, req.Location)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, m)
	case errors.Is(err, ErrDuplicate):
		http.Error(w, `{"error":"monitor already exists for this keyword and location"}`, http.StatusConflict)
	case errors.Is(err, ErrLimitReached):
		http.Error(w, `{"error":"monitor limit reached"}`, http.StatusForbidden)
	default:
		h.log.Error("create monitor failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
	}
}

// List handles GET /api/v1/monitors, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.log.Error("list monitors failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Monitor{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Delete handles DELETE /api/v1/monitors/{id}. Already-found leads survive
// the monitor that surfaced them.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid monitor id"}`, http.StatusBadRequest)
		return
	}

	switch err := h.svc.Delete(r.Context(), id, userID); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, ErrNotFound):
		http.Error(w, `{"error":"monitor not found"}`, http.StatusNotFound)
	default:
		h.log.Error("delete monitor failed", "user_id", userID, "monitor_id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
