package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tallyhq/tally/internal/webhook"
)

// WebhookHandler receives signed callbacks from external services.
type WebhookHandler struct {
	secret string
	logger *slog.Logger
}

func NewWebhookHandler(secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, logger: logger}
}

type webhookEnvelope struct {
	Type string `json:"type"`
}

// Receive verifies the signature over the raw body before parsing it.
// POST /api/v1/webhook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, status, err := readBody(r)
	if err != nil {
		writeError(w, status, "Invalid request body: "+err.Error())
		return
	}

	sig := webhook.ParseHeader(r.Header.Get(webhook.SignatureHeader))
	if !webhook.Verify(body, sig, h.secret) {
		writeError(w, http.StatusForbidden, "Invalid signature")
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	h.logger.Info("webhook received", "type", env.Type)
	writeJSON(w, http.StatusAccepted, map[string]bool{"received": true})
}
