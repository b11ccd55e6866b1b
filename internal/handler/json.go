// Package handler holds the JSON handlers of the basket daemon.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/basket/internal/shopping"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// writeServiceError maps mutation API errors to responses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, shopping.ErrListNotFound),
		errors.Is(err, shopping.ErrItemNotFound),
		errors.Is(err, shopping.ErrNothingToUndo):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shopping.ErrInvalidName),
		errors.Is(err, shopping.ErrInvalidQuantity),
		errors.Is(err, shopping.ErrIndexOutOfRange):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
