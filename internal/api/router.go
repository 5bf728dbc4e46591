package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tuya/internal/store"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// API v1 routes (read-only)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/state", s.handleGetDeviceState)
			})
		})
	})

	return r
}

// handleHealth returns the bridge health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.bridge != nil {
		resp["authenticated"] = s.bridge.Authenticated()
		resp["realtime"] = s.bridge.RealtimeState().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// deviceView is the API representation of a mirrored device.
type deviceView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Online   bool   `json:"online"`
}

// handleListDevices returns every mirrored device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("device listing failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, dev := range devices {
		views = append(views, deviceView{
			ID:       dev.ID,
			Name:     dev.Name,
			Category: dev.Category,
			Online:   dev.Online,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns one device including its capability model.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("device fetch failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to fetch device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleGetDeviceState returns a device's last-known attribute values.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("device fetch failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to fetch device")
		return
	}

	state, err := s.store.GetState(r.Context(), id)
	if err != nil {
		s.logger.Error("state fetch failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to fetch state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"state":     state,
	})
}
