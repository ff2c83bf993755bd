package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

const historicalExample = "/api/data/historical?from=2023-01-01T00:00:00&to=2023-01-31T23:59:59"

type collectResponse struct {
	Message string              `json:"message"`
	Results []telemetry.Reading `json:"results"`
}

// handleCurrent returns the newest reading of every device, collecting
// once when nothing has been stored yet.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	readings, err := s.collector.CurrentOrBootstrap(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(readings))
}

func (s *Server) handleDeviceReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	readings, err := s.store.Query(r.Context(),
		telemetry.RecentQuery(chi.URLParam(r, "deviceID"), q.Get("from"), q.Get("to"), limit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(readings))
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")

	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Missing required parameters",
			Message: "Both 'from' and 'to' parameters are required",
			Example: historicalExample,
		})
		return
	}

	readings, err := s.store.Query(r.Context(), telemetry.HistoricalQuery(from, to, q.Get("device_id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(readings))
}

// handleCollect runs one pass immediately. Devices that fail are left out
// of the results; the pass itself still answers 200.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	results, failures := s.collector.Collect(r.Context())
	if len(failures) > 0 {
		s.logger.Warn().
			Int("failed", len(failures)).
			Int("stored", len(results)).
			Msg("On-demand collection finished with failures")
	}

	writeJSON(w, http.StatusOK, collectResponse{
		Message: "Data collection triggered",
		Results: nonNil(results),
	})
}

// parseLimit accepts an empty value (the default applies) or a positive integer.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return telemetry.DefaultRecentLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New().WithMessage(errors.ErrInvalidArgument, "limit must be a positive integer")
	}

	return limit, nil
}

// nonNil keeps empty results encoded as [] rather than null.
func nonNil(readings []telemetry.Reading) []telemetry.Reading {
	if readings == nil {
		return []telemetry.Reading{}
	}

	return readings
}
