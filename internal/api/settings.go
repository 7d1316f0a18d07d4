package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkblue/inkblue-core/internal/settings"
)

// handleListSettings returns every behaviour toggle with its current value.
func (s *Server) handleListSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"settings": s.settings.All(),
	})
}

// setSettingRequest is the body for PUT /settings/{key}.
type setSettingRequest struct {
	Value *bool `json:"value"`
}

// handleSetSetting updates a single behaviour toggle.
func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req setSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := s.settings.Set(r.Context(), key, *req.Value); err != nil {
		if errors.Is(err, settings.ErrUnknownKey) {
			writeNotFound(w, "unknown settings key")
			return
		}
		s.logger.Error("settings update failed", "key", key, "error", err)
		writeInternalError(w, "settings update failed")
		return
	}

	writeJSON(w, http.StatusOK, settings.KeyValue{Key: key, Value: *req.Value})
}
