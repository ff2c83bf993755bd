package api

import (
	"encoding/json"
	"net/http"

	"codeberg.org/mutker/telemetryd/internal/errors"
)

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Example string `json:"example,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and renders err as {"error": ...}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorWithCode(err).
			Str("path", r.URL.Path).
			Interface("request_id", r.Context().Value(ctxKeyRequestID)).
			Msg("Request failed")
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: message})
}
