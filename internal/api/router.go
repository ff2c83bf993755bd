package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/data", func(r chi.Router) {
			r.Get("/current", s.handleCurrent)
			r.Get("/device/{deviceID}", s.handleDeviceReadings)
			r.Get("/historical", s.handleHistorical)
			r.Post("/collect", s.handleCollect)
			r.Get("/stream", s.handleStream)
		})

		r.Get("/devices", s.handleListDevices)
		r.Get("/device/{deviceID}", s.handleGetDevice)

		r.Route("/config/interval", func(r chi.Router) {
			r.Get("/", s.handleGetInterval)
			r.Put("/", s.handleSetInterval)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
