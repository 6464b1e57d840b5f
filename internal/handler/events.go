package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhq/tally/internal/service"
)

// EventHandler serves event listings and daily counts for a project.
type EventHandler struct {
	events *service.EventService
}

func NewEventHandler(events *service.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// List returns a page of events, newest first.
// GET /api/v1/projects/{projectId}/events?limit=&cursor=
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.events.List(r.Context(),
		chi.URLParam(r, "projectId"),
		r.URL.Query().Get("cursor"),
		queryInt(r, "limit", service.DefaultEventLimit),
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Counts returns zero-filled daily event counts.
// GET /api/v1/projects/{projectId}/events/counts?days=
func (h *EventHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.events.DailyCounts(r.Context(),
		chi.URLParam(r, "projectId"),
		queryInt(r, "days", service.DefaultCountDays),
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
