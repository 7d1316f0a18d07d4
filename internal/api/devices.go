package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkblue/inkblue-core/internal/bus"
	"github.com/inkblue/inkblue-core/internal/registry"
)

// deviceFromRequest resolves the {address} URL parameter against the
// registry cache. Writes the error response itself on failure.
func (s *Server) deviceFromRequest(w http.ResponseWriter, r *http.Request) (registry.Peripheral, bool) {
	address, ok := bus.CanonicalAddress(chi.URLParam(r, "address"))
	if !ok {
		writeBadRequest(w, "invalid device address")
		return registry.Peripheral{}, false
	}

	device, ok := s.devices.DeviceByAddress(address)
	if !ok {
		writeNotFound(w, "device not known")
		return registry.Peripheral{}, false
	}
	return device, true
}

// handleListDevices returns the cached peripherals.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single cached peripheral.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleConnectDevice issues a connect command for the device.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	if !s.devices.ConnectDevice(r.Context(), device, nil) {
		writeConflict(w, "connect command failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "address": device.Address})
}

// handleDisconnectDevice issues a disconnect command for the device.
func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	if !s.devices.DisconnectDevice(r.Context(), device, nil) {
		writeConflict(w, "disconnect command failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": false, "address": device.Address})
}

// handleTrustDevice marks the device trusted on the adapter.
func (s *Server) handleTrustDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	if !s.devices.TrustDevice(r.Context(), device, nil) {
		writeConflict(w, "trust command failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trusted": true, "address": device.Address})
}

// handleUntrustDevice clears the trusted flag on the adapter.
func (s *Server) handleUntrustDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	if !s.devices.UntrustDevice(r.Context(), device, nil) {
		writeConflict(w, "untrust command failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trusted": false, "address": device.Address})
}

// handleRemoveDevice unpairs the device from the adapter.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}

	if !s.devices.RemoveDevice(r.Context(), device, nil) {
		writeConflict(w, "remove command failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true, "address": device.Address})
}
