package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tallyhq/tally/internal/service"
)

// TrackHandler accepts events authorized by an access token.
type TrackHandler struct {
	gate       *service.Gate
	retryAfter time.Duration
}

// NewTrackHandler creates a TrackHandler. retryAfter is advertised to
// rate-limited clients and should match the limiter window.
func NewTrackHandler(gate *service.Gate, retryAfter time.Duration) *TrackHandler {
	return &TrackHandler{gate: gate, retryAfter: retryAfter}
}

type trackResponse struct {
	ID string `json:"id"`
}

// Track runs the event through the ingestion gate.
// POST /api/v1/track
func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	body, status, err := readBody(r)
	if err != nil {
		writeError(w, status, "Invalid request body: "+err.Error())
		return
	}

	ev, err := h.gate.Admit(r.Context(), service.IngestRequest{
		Authorization: r.Header.Get("Authorization"),
		Origin:        r.Header.Get("Origin"),
		Referer:       r.Header.Get("Referer"),
		ForwardedFor:  r.Header.Get("X-Forwarded-For"),
		RealIP:        r.Header.Get("X-Real-IP"),
		Body:          body,
	})
	if err != nil {
		if errors.Is(err, service.ErrTooManyRequests) && h.retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, trackResponse{ID: ev.ID})
}
