package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"spadesk/backend/internal/domain"
	"spadesk/backend/internal/service/availability"
	"spadesk/backend/internal/store"
)

var tracer = otel.Tracer("spadesk.internal.service.bookings")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type slotSource interface {
	AvailableSlots(ctx context.Context, date time.Time) ([]availability.TimeSlot, error)
	Today() time.Time
}

// Recorder receives booking write outcomes; metrics.BookingMetrics implements it.
type Recorder interface {
	ObserveBooking(action, outcome string)
}

type Service struct {
	repo     store.BookingRepository
	config   availability.ConfigProvider
	slots    slotSource
	log      *slog.Logger
	recorder Recorder
}

func NewService(repo store.BookingRepository, config availability.ConfigProvider, slots slotSource, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		config:   config,
		slots:    slots,
		log:      log.With(slog.String("component", "service.bookings")),
		recorder: noopRecorder{},
	}
}

func (s *Service) WithRecorder(r Recorder) *Service {
	if r != nil {
		s.recorder = r
	}
	return s
}

type CreateInput struct {
	Date           time.Time
	StartTime      string
	TherapistID    *uuid.UUID
	ClientName     string
	ClientPhone    string
	ClientEmail    string
	ServiceName    string
	Notes          string
	IdempotencyKey string
}

// Create books a slot from the public flow. The slot must be open at the time of the call;
// two clients racing for the last unit of capacity can both pass this check.
func (s *Service) Create(ctx context.Context, in CreateInput) (out domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "bookings.create")
	defer span.End()
	defer func() {
		s.recorder.ObserveBooking("create", outcome(err))
		if err != nil {
			span.RecordError(err)
		}
	}()

	name := strings.TrimSpace(in.ClientName)
	if name == "" {
		return domain.Booking{}, validationError("client_name is required")
	}
	phone := strings.TrimSpace(in.ClientPhone)
	email := strings.TrimSpace(in.ClientEmail)
	if phone == "" && email == "" {
		return domain.Booking{}, validationError("client_phone or client_email is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.Booking{}, validationError("invalid client_email")
		}
	}
	if in.Date.IsZero() {
		return domain.Booking{}, validationError("date is required")
	}
	start, err := domain.ParseClockTime(strings.TrimSpace(in.StartTime))
	if err != nil {
		return domain.Booking{}, validationError("start_time must be HH:MM")
	}
	date := domain.DateOnly(in.Date)
	if date.Before(s.slots.Today()) {
		return domain.Booking{}, validationError("date is in the past")
	}
	if in.TherapistID != nil && *in.TherapistID == uuid.Nil {
		in.TherapistID = nil
	}

	span.SetAttributes(
		attribute.String("spadesk.date", domain.FormatDate(date)),
		attribute.String("spadesk.start_time", start.String()),
	)

	cfg, err := s.config.ScheduleConfig(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	end := start.Add(cfg.SlotDurationMinutes)

	endStr := end.String()
	b := domain.Booking{
		BookingDate: date,
		StartTime:   start.String(),
		EndTime:     &endStr,
		TherapistID: in.TherapistID,
		Status:      domain.BookingStatusPending,
		ClientName:  name,
		ClientPhone: phone,
		ClientEmail: email,
		ServiceName: strings.TrimSpace(in.ServiceName),
		Notes:       in.Notes,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Booking{}, validationError("idempotency_key too long")
		}
		b.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("spadesk:create_booking:"+key))

		// A replay must not be gated on capacity its own first attempt consumed.
		existing, err := s.repo.Get(ctx, b.ID)
		switch {
		case err == nil:
			if !existing.SameRequest(b) {
				return domain.Booking{}, store.ErrIdempotencyConflict
			}
			span.AddEvent("idempotent replay")
			s.log.Info("booking replayed", slog.String("booking_id", existing.ID.String()))
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return domain.Booking{}, err
		}
	}

	open, err := s.slots.AvailableSlots(ctx, date)
	if err != nil {
		return domain.Booking{}, err
	}
	span.AddEvent("availability checked", trace.WithAttributes(attribute.Int("spadesk.open_slots", len(open))))
	if !slotOpen(open, start) {
		return domain.Booking{}, store.ErrConflict
	}
	if in.TherapistID != nil {
		therapist, ok := findTherapist(cfg, *in.TherapistID)
		if !ok || !therapist.Enabled {
			return domain.Booking{}, validationError("unknown therapist")
		}
		if !worksDuring(therapist, date.Weekday(), start, end) {
			return domain.Booking{}, store.ErrConflict
		}
	}

	created, err := s.repo.Create(ctx, b)
	if err != nil {
		return domain.Booking{}, err
	}

	s.log.Info(
		"booking created",
		slog.String("booking_id", created.ID.String()),
		slog.String("date", domain.FormatDate(created.BookingDate)),
		slog.String("start_time", created.StartTime),
		slog.Bool("assigned", !created.Unassigned()),
	)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	if id == uuid.Nil {
		return domain.Booking{}, validationError("booking_id is required")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) ListForDate(ctx context.Context, date time.Time) ([]domain.Booking, error) {
	if date.IsZero() {
		return nil, validationError("date is required")
	}
	return s.repo.ListForDate(ctx, domain.DateOnly(date))
}

func (s *Service) ListForTherapist(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]domain.Booking, error) {
	if therapistID == uuid.Nil {
		return nil, validationError("therapist_id is required")
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}
	return s.repo.ListForTherapist(ctx, therapistID, domain.DateOnly(date))
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) (out domain.Booking, err error) {
	defer func() { s.recorder.ObserveBooking(statusAction(status), outcome(err)) }()

	if id == uuid.Nil {
		return domain.Booking{}, validationError("booking_id is required")
	}
	if !status.Valid() {
		return domain.Booking{}, validationError("invalid status")
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if current.Status == status {
		return current, nil
	}
	if !current.Status.CanTransitionTo(status) {
		return domain.Booking{}, validationError("cannot change status from " + string(current.Status) + " to " + string(status))
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return domain.Booking{}, err
	}
	s.log.Info(
		"booking status changed",
		slog.String("booking_id", id.String()),
		slog.String("from", string(current.Status)),
		slog.String("to", string(status)),
	)
	return updated, nil
}

// CheckIn is the kiosk arrival step.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return s.UpdateStatus(ctx, id, domain.BookingStatusCheckedIn)
}

func (s *Service) AssignTherapist(ctx context.Context, id uuid.UUID, therapistID uuid.UUID) (out domain.Booking, err error) {
	defer func() { s.recorder.ObserveBooking("assign", outcome(err)) }()

	if id == uuid.Nil {
		return domain.Booking{}, validationError("booking_id is required")
	}
	if therapistID == uuid.Nil {
		return domain.Booking{}, validationError("therapist_id is required")
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if !current.Status.Active() {
		return domain.Booking{}, validationError("booking is closed")
	}

	cfg, err := s.config.ScheduleConfig(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	therapist, ok := findTherapist(cfg, therapistID)
	if !ok || !therapist.Enabled {
		return domain.Booking{}, validationError("unknown therapist")
	}
	start, end, err := bookingWindow(current, cfg.SlotDurationMinutes)
	if err != nil {
		return domain.Booking{}, err
	}
	if !worksDuring(therapist, current.BookingDate.Weekday(), start, end) {
		return domain.Booking{}, store.ErrConflict
	}

	updated, err := s.repo.AssignTherapist(ctx, id, therapistID)
	if err != nil {
		return domain.Booking{}, err
	}
	s.log.Info("booking assigned", slog.String("booking_id", id.String()), slog.String("therapist_id", therapistID.String()))
	return updated, nil
}

// bookingWindow reads the stored times; a missing end borrows the current slot duration.
func bookingWindow(b domain.Booking, duration int) (domain.ClockTime, domain.ClockTime, error) {
	start, err := domain.ParseClockTime(b.StartTime)
	if err != nil {
		return 0, 0, fmt.Errorf("booking %s start_time %q: %w", b.ID, b.StartTime, err)
	}
	end := start.Add(duration)
	if b.EndTime != nil && *b.EndTime != "" {
		end, err = domain.ParseClockTime(*b.EndTime)
		if err != nil {
			return 0, 0, fmt.Errorf("booking %s end_time %q: %w", b.ID, *b.EndTime, err)
		}
	}
	return start, end, nil
}

func statusAction(status domain.BookingStatus) string {
	if !status.Valid() {
		return "status:invalid"
	}
	return "status:" + string(status)
}

func slotOpen(open []availability.TimeSlot, start domain.ClockTime) bool {
	for _, slot := range open {
		if slot.Time == start && slot.AvailableCount > 0 {
			return true
		}
	}
	return false
}

func findTherapist(cfg domain.ScheduleConfig, id uuid.UUID) (domain.Therapist, bool) {
	for _, t := range cfg.Therapists {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Therapist{}, false
}

func worksDuring(t domain.Therapist, day time.Weekday, start, end domain.ClockTime) bool {
	for _, w := range t.Schedule {
		if w.DayOfWeek != int(day) {
			continue
		}
		ws, err := domain.ParseClockTime(w.StartTime)
		if err != nil {
			continue
		}
		we, err := domain.ParseClockTime(w.EndTime)
		if err != nil {
			continue
		}
		if ws <= start && end <= we {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

type noopRecorder struct{}

func (noopRecorder) ObserveBooking(string, string) {}
