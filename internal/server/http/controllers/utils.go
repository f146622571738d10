package controllers

import (
	"errors"
	"net/http"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/rzbill/flodq/internal/namespace"
	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/internal/store"
)

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	_ = encodeJSON(w, data)
}

// encodeJSON is writeJSON for callers that must know the body was written.
func encodeJSON(w http.ResponseWriter, data any) error {
	w.Header().Set("Content-Type", "application/json")
	return gojson.NewEncoder(w).Encode(data)
}

func writeAccepted(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = gojson.NewEncoder(w).Encode(data)
}

// decodeBody decodes a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := gojson.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidName),
		errors.Is(err, store.ErrPayloadTooLarge),
		errors.Is(err, namespace.ErrInvalidName),
		errors.Is(err, poll.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrClosed), errors.Is(err, poll.ErrConnectionFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
