package configapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"email_forwarder/internal/config"
	"email_forwarder/internal/prompt"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// DocumentStore holds the configuration as a raw JSON document.
type DocumentStore interface {
	GetRaw(ctx context.Context) (json.RawMessage, error)
	Save(ctx context.Context, raw json.RawMessage) error
}

type Handler struct {
	store DocumentStore
}

func NewHandler(store DocumentStore) *Handler {
	return &Handler{store: store}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// GetConfig returns the stored configuration document.
// GET /
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := h.store.GetRaw(r.Context())
	if errors.Is(err, config.ErrNotFound) {
		writeError(w, http.StatusNotFound, "configuration not set", nil)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read configuration")
		writeError(w, http.StatusInternalServerError, "failed to read configuration", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// SaveConfig validates and stores a configuration document, replacing the
// previous one.
// POST /
func (h *Handler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, "configuration is empty", nil)
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "configuration is not valid JSON", nil)
		return
	}

	var cfg config.Configuration
	if err := json.Unmarshal(body, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "configuration does not match the expected shape", err)
		return
	}
	if err := prompt.Validate(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration", err)
		return
	}

	if err := h.store.Save(r.Context(), body); err != nil {
		log.Error().Err(err).Msg("Failed to save configuration")
		writeError(w, http.StatusInternalServerError, "failed to save configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
