package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/service"
)

// KeyHandler manages a project's API keys. Routes are mounted behind owner
// authentication and project ownership checks.
type KeyHandler struct {
	keys *service.KeyManager
}

func NewKeyHandler(keys *service.KeyManager) *KeyHandler {
	return &KeyHandler{keys: keys}
}

type createKeyRequest struct {
	Name string `json:"name"`
}

// Create issues a new key. The plaintext secret is returned only here.
// POST /api/v1/projects/{projectId}/api-keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.keys.Create(r.Context(), chi.URLParam(r, "projectId"), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// List returns the project's keys with masked material.
// GET /api/v1/projects/{projectId}/api-keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// Rotate replaces a key's public key and secret.
// PUT /api/v1/projects/{projectId}/api-keys/{apiKeyId}/rotate
func (h *KeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	rotated, err := h.keys.Rotate(r.Context(), chi.URLParam(r, "projectId"), chi.URLParam(r, "apiKeyId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rotated)
}

// Revoke permanently disables a key.
// DELETE /api/v1/projects/{projectId}/api-keys/{apiKeyId}/revoke
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.Revoke(r.Context(), chi.URLParam(r, "projectId"), chi.URLParam(r, "apiKeyId")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true})
}
