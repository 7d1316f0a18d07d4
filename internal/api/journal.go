package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inkblue/inkblue-core/internal/bus"
)

// defaultJournalLimit caps the journal listing when the client does not
// specify one.
const defaultJournalLimit = 50

// handleJournal returns the most recently sighted devices from the
// persistent journal.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "journal not available")
		return
	}

	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sightings, err := s.history.KnownDevices(r.Context(), limit)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeInternalError(w, "journal query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": sightings,
		"count":   len(sightings),
	})
}

// handleForget removes a device from the journal.
func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "journal not available")
		return
	}

	address, ok := bus.CanonicalAddress(chi.URLParam(r, "address"))
	if !ok {
		writeBadRequest(w, "invalid device address")
		return
	}

	if err := s.history.Forget(r.Context(), address); err != nil {
		s.logger.Error("journal forget failed", "address", address, "error", err)
		writeInternalError(w, "journal delete failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"forgotten": true, "address": address})
}
