package handler

import (
	"net/http"

	"github.com/tallyhq/tally/internal/service"
)

// ExchangeHandler trades Basic key:secret credentials for an access token.
type ExchangeHandler struct {
	keys *service.KeyManager
}

func NewExchangeHandler(keys *service.KeyManager) *ExchangeHandler {
	return &ExchangeHandler{keys: keys}
}

// Exchange issues a short-lived token.
// POST /api/v1/token-exchange
func (h *ExchangeHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	key, secret, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="tally"`)
		writeError(w, http.StatusUnauthorized, "Basic credentials required")
		return
	}

	issued, err := h.keys.Exchange(r.Context(), key, secret)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="tally"`)
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, issued)
}
