package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"codeberg.org/mutker/telemetryd/internal/device"
	"codeberg.org/mutker/telemetryd/internal/errors"
)

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Get(chi.URLParam(r, "deviceID"))
	if errors.HasCode(err, device.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Device not found"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}
