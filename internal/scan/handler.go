package scan

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/middleware"
	"github.com/leadpulse/backend/internal/scanlog"
)

type Handler struct {
	svc      *Service
	monitors MonitorStore
	events   scanlog.Sink
	log      *slog.Logger
}

func NewHandler(svc *Service, monitors MonitorStore, events scanlog.Sink, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, monitors: monitors, events: events, log: log}
}

// Start handles POST /api/v1/monitors/{id}/scan. The scan runs in the
// background; a 202 means the charge landed and the job is queued.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	monitorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid monitor id"}`, http.StatusBadRequest)
		return
	}

	switch err := h.svc.Start(r.Context(), userID, monitorID); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "scanning", "monitor_id": monitorID})
	case errors.Is(err, ErrMonitorNotFound):
		http.Error(w, `{"error":"monitor not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrScanInProgress):
		http.Error(w, `{"error":"scan already in progress"}`, http.StatusConflict)
	case errors.Is(err, ledger.ErrInsufficientCredits):
		http.Error(w, `{"error":"insufficient credits"}`, http.StatusPaymentRequired)
	case errors.Is(err, ledger.ErrScanLimitReached):
		http.Error(w, `{"error":"monthly scan limit reached"}`, http.StatusTooManyRequests)
	default:
		h.log.Error("scan dispatch failed", "user_id", userID, "monitor_id", monitorID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

// Events handles GET /api/v1/monitors/{id}/events: the recent activity lines
// for the monitor's live console. The frontend polls this while a scan runs.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	monitorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid monitor id"}`, http.StatusBadRequest)
		return
	}

	if _, err := h.monitors.GetOwned(r.Context(), monitorID, userID); err != nil {
		http.Error(w, `{"error":"monitor not found"}`, http.StatusNotFound)
		return
	}

	lines, err := h.events.Recent(r.Context(), monitorID)
	if err != nil {
		h.log.Error("events read failed", "monitor_id", monitorID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitor_id": monitorID, "events": lines})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
