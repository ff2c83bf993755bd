package api

import (
	"encoding/json"
	"net/http"

	"codeberg.org/mutker/telemetryd/internal/settings"
)

// intervalDocument is the public form of the collection interval setting.
type intervalDocument struct {
	ConfigType  string `json:"config_type"`
	Value       int    `json:"value"`
	Description string `json:"description"`
}

type intervalUpdate struct {
	Value *int `json:"value"`
}

func newIntervalDocument(seconds int) intervalDocument {
	return intervalDocument{
		ConfigType:  settings.IntervalKey,
		Value:       seconds,
		Description: settings.IntervalDescription,
	}
}

func (s *Server) handleGetInterval(w http.ResponseWriter, r *http.Request) {
	seconds, err := s.interval.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newIntervalDocument(seconds))
}

// handleSetInterval replaces the interval. The scheduler picks it up after
// its current wait.
func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var body intervalUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeBadRequest(w, "Request body must be {\"value\": <seconds>}")
		return
	}
	if body.Value == nil {
		writeBadRequest(w, "Missing required field 'value'")
		return
	}

	if err := s.interval.Set(r.Context(), *body.Value); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info().Int("seconds", *body.Value).Msg("Collection interval updated")
	writeJSON(w, http.StatusOK, newIntervalDocument(*body.Value))
}
