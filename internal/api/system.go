package api

import "net/http"

// handleSubsystemStatus reports the subsystem power and policy state.
func (s *Server) handleSubsystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":             s.subsystem.Enabled(),
		"auto_detect_active":  s.subsystem.AutoDetectActive(),
		"auto_connect_active": s.subsystem.AutoConnectActive(),
	})
}

// handleEnable powers the subsystem up. Idempotent.
func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if !s.subsystem.Enable(r.Context()) {
		writeConflict(w, "subsystem failed to start")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

// handleDisable powers the subsystem down. Idempotent.
func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.subsystem.Disable(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
}
