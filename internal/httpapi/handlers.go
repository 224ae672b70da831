package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"tmwatch/internal/poll"
	"tmwatch/internal/store"
)

type StatusSource interface {
	Status() poll.Status
}

type EventSource interface {
	Recent(ctx context.Context, limit int) ([]store.Event, error)
}

type HealthHandler struct {
	Started time.Time
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"uptime": time.Since(h.Started).Round(time.Second).String(),
	})
}

type StatusHandler struct {
	Loop StatusSource
}

func (h StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Loop == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "not_running", "polling loop not running")
		return
	}
	WriteJSON(w, http.StatusOK, h.Loop.Status())
}

type EventsHandler struct {
	Audit EventSource // nil when the audit journal is disabled
}

func (h EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		WriteError(w, r, http.StatusNotFound, "audit_disabled", "audit journal is disabled")
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			WriteError(w, r, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	evs, err := h.Audit.Recent(r.Context(), limit)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "audit_error", err.Error())
		return
	}
	if evs == nil {
		evs = []store.Event{}
	}
	WriteJSON(w, http.StatusOK, evs)
}
