package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/syncgate/tokenserver/issuer"
	"github.com/syncgate/tokenserver/storage"
)

// Request bodies on the admin surface are small JSON documents.
const maxSmallBodySize = 64 * 1024

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError translates sentinel errors to HTTP statuses. Bodies are fixed
// strings rather than err.Error(): storage errors wrap the lookup key,
// which contains the account identifier and must not be echoed back.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown account")
	case errors.Is(err, issuer.ErrClientStateMismatch):
		writeError(w, http.StatusUnauthorized, "invalid client state")
	case errors.Is(err, ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeInternalError logs the underlying error and returns a generic body.
func writeInternalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeJSON reads and decodes a JSON request body into T, rejecting
// unknown fields, oversized bodies, and trailing data. On failure it
// writes the error response and returns ok=false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T

	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return v, false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, "unexpected data after JSON body")
		return v, false
	}
	return v, true
}
