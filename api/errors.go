package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/postcraft-hq/postcraft/storage"
)

// Error codes returned in the "error" field of handler failures.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeUnauthenticated = "unauthenticated"
	CodeNotFound        = "not_found"
	CodeTooLarge        = "request_too_large"
	CodeInternal        = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// writeInternalError logs err and returns a generic 500 so internals do
// not leak to clients.
func writeInternalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, CodeInternal, msg)
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "not found")
	default:
		writeInternalError(w, "internal error", err)
	}
}

// decodeJSON reads a size-limited JSON body, rejecting unknown fields. On
// failure it writes the error response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}
