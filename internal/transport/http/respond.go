package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"spadesk/backend/internal/service/availability"
	"spadesk/backend/internal/service/bookings"
	"spadesk/backend/internal/service/clinic"
	"spadesk/backend/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps service and store errors to status codes. Only unexpected failures are logged at error level.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		bookingErr *bookings.ValidationError
		clinicErr  *clinic.ValidationError
	)
	switch {
	case errors.As(err, &bookingErr):
		writeErrorMessage(w, http.StatusBadRequest, bookingErr.Error())
	case errors.As(err, &clinicErr):
		writeErrorMessage(w, http.StatusBadRequest, clinicErr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeErrorMessage(w, http.StatusConflict, "That time is no longer available. Pick a different slot.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		writeErrorMessage(w, http.StatusConflict, "This request key was already used for a different booking.")
	case errors.Is(err, availability.ErrDataUnavailable):
		log.Error("availability data unavailable", slog.Any("err", err))
		writeErrorMessage(w, http.StatusServiceUnavailable, "availability data unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		writeErrorMessage(w, http.StatusGatewayTimeout, "deadline exceeded")
	default:
		log.Error("request failed", slog.Any("err", err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
