package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"spadesk/backend/internal/domain"
	"spadesk/backend/internal/service/availability"
	"spadesk/backend/internal/service/bookings"
	"spadesk/backend/internal/service/clinic"
)

const defaultDateRange = 14

type availabilityAPI interface {
	AvailableSlots(ctx context.Context, date time.Time) ([]availability.TimeSlot, error)
	AvailableDates(ctx context.Context, start time.Time, days int) ([]time.Time, error)
	Location() *time.Location
	Today() time.Time
}

type bookingAPI interface {
	Create(ctx context.Context, in bookings.CreateInput) (domain.Booking, error)
	ListForDate(ctx context.Context, date time.Time) ([]domain.Booking, error)
	ListForTherapist(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) (domain.Booking, error)
	CheckIn(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	AssignTherapist(ctx context.Context, id uuid.UUID, therapistID uuid.UUID) (domain.Booking, error)
}

type clinicAPI interface {
	ListTherapists(ctx context.Context) ([]domain.Therapist, error)
	CreateTherapist(ctx context.Context, in clinic.TherapistInput) (domain.Therapist, error)
	UpdateTherapist(ctx context.Context, id uuid.UUID, in clinic.TherapistInput) (domain.Therapist, error)
	Settings(ctx context.Context) (domain.ScheduleSettings, error)
	UpdateSettings(ctx context.Context, slotDuration, buffer int) (domain.ScheduleSettings, error)
}

type handlers struct {
	availability availabilityAPI
	bookings     bookingAPI
	clinic       clinicAPI
	log          *slog.Logger
}

type bookingResponse struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	StartTime   string  `json:"startTime"`
	EndTime     *string `json:"endTime"`
	TherapistID *string `json:"therapistId"`
	Status      string  `json:"status"`
	ClientName  string  `json:"clientName"`
	ClientPhone string  `json:"clientPhone,omitempty"`
	ClientEmail string  `json:"clientEmail,omitempty"`
	ServiceName string  `json:"serviceName,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"createdAt"`
}

func toBookingResponse(b domain.Booking) bookingResponse {
	out := bookingResponse{
		ID:          b.ID.String(),
		Date:        domain.FormatDate(b.BookingDate),
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Status:      string(b.Status),
		ClientName:  b.ClientName,
		ClientPhone: b.ClientPhone,
		ClientEmail: b.ClientEmail,
		ServiceName: b.ServiceName,
		Notes:       b.Notes,
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !b.Unassigned() {
		id := b.TherapistID.String()
		out.TherapistID = &id
	}
	return out
}

func toBookingResponses(rows []domain.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(rows))
	for _, b := range rows {
		out = append(out, toBookingResponse(b))
	}
	return out
}

// dateParam reads a YYYY-MM-DD query value, falling back to today in the clinic zone.
func (h *handlers) dateParam(r *http.Request, name string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return h.availability.Today(), true
	}
	d, err := domain.ParseDate(raw, h.availability.Location())
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *handlers) availableDates(w http.ResponseWriter, r *http.Request) {
	start, ok := h.dateParam(r, "start")
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	days := defaultDateRange
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > availability.MaxDateRange {
			writeErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("days must be between 0 and %d", availability.MaxDateRange))
			return
		}
		days = n
	}

	dates, err := h.availability.AvailableDates(r.Context(), start, days)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, domain.FormatDate(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": out})
}

func (h *handlers) availableSlots(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.URL.Query().Get("date")) == "" {
		writeErrorMessage(w, http.StatusBadRequest, "date is required")
		return
	}
	date, ok := h.dateParam(r, "date")
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.availability.AvailableSlots(r.Context(), date)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": domain.FormatDate(date), "slots": slots})
}

type createBookingRequest struct {
	Date        string  `json:"date"`
	StartTime   string  `json:"startTime"`
	TherapistID *string `json:"therapistId"`
	ClientName  string  `json:"clientName"`
	ClientPhone string  `json:"clientPhone"`
	ClientEmail string  `json:"clientEmail"`
	ServiceName string  `json:"serviceName"`
	Notes       string  `json:"notes"`
}

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := domain.ParseDate(req.Date, h.availability.Location())
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	in := bookings.CreateInput{
		Date:           date,
		StartTime:      req.StartTime,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		ClientEmail:    req.ClientEmail,
		ServiceName:    req.ServiceName,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.TherapistID != nil && strings.TrimSpace(*req.TherapistID) != "" {
		id, err := uuid.Parse(strings.TrimSpace(*req.TherapistID))
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "therapistId must be a UUID")
			return
		}
		in.TherapistID = &id
	}

	b, err := h.bookings.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *handlers) checkIn(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "booking id must be a UUID")
		return
	}
	b, err := h.bookings.CheckIn(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *handlers) receptionBookings(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(r, "date")
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	rows, err := h.bookings.ListForDate(r.Context(), date)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": domain.FormatDate(date), "bookings": toBookingResponses(rows)})
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "booking id must be a UUID")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	b, err := h.bookings.UpdateStatus(r.Context(), id, domain.BookingStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *handlers) assignTherapist(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "booking id must be a UUID")
		return
	}
	var req struct {
		TherapistID string `json:"therapistId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	therapistID, err := uuid.Parse(strings.TrimSpace(req.TherapistID))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "therapistId must be a UUID")
		return
	}
	b, err := h.bookings.AssignTherapist(r.Context(), id, therapistID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *handlers) therapistBookings(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	therapistID, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeErrorMessage(w, http.StatusForbidden, "token subject is not a therapist id")
		return
	}
	date, ok := h.dateParam(r, "date")
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	rows, err := h.bookings.ListForTherapist(r.Context(), therapistID, date)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": domain.FormatDate(date), "bookings": toBookingResponses(rows)})
}

type therapistRequest struct {
	Name     string                `json:"name"`
	Enabled  *bool                 `json:"enabled"`
	Schedule []domain.ScheduleSlot `json:"schedule"`
}

func (req therapistRequest) input() clinic.TherapistInput {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return clinic.TherapistInput{Name: req.Name, Enabled: enabled, Schedule: req.Schedule}
}

func (h *handlers) listTherapists(w http.ResponseWriter, r *http.Request) {
	rows, err := h.clinic.ListTherapists(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if rows == nil {
		rows = []domain.Therapist{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"therapists": rows})
}

func (h *handlers) createTherapist(w http.ResponseWriter, r *http.Request) {
	var req therapistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, err := h.clinic.CreateTherapist(r.Context(), req.input())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handlers) updateTherapist(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "therapist id must be a UUID")
		return
	}
	var req therapistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, err := h.clinic.UpdateTherapist(r.Context(), id, req.input())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.clinic.Settings(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SlotDurationMinutes  int `json:"slotDurationMinutes"`
		BookingBufferMinutes int `json:"bookingBufferMinutes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s, err := h.clinic.UpdateSettings(r.Context(), req.SlotDurationMinutes, req.BookingBufferMinutes)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
