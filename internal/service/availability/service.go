package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"spadesk/backend/internal/domain"
)

var tracer = otel.Tracer("spadesk.internal.service.availability")

var (
	// ErrDataUnavailable means the schedule or booking data could not be read, so no
	// availability answer can be given. It is never reported as an empty result.
	ErrDataUnavailable = errors.New("availability data unavailable")
	// ErrMalformedBookingTime is returned alongside ErrDataUnavailable when a stored booking
	// carries a start or end time that is not HH:MM.
	ErrMalformedBookingTime = errors.New("malformed booking time")
)

type ConfigProvider interface {
	ScheduleConfig(ctx context.Context) (domain.ScheduleConfig, error)
}

// MaxDateRange bounds how many days a single date scan covers.
const MaxDateRange = 90

type BookingSource interface {
	ListActiveForDate(ctx context.Context, date time.Time) ([]domain.Booking, error)
}

// Recorder receives query outcomes; metrics.AvailabilityMetrics implements it.
type Recorder interface {
	ObserveQuery(kind, outcome string, seconds float64)
}

type TimeSlot struct {
	Time           domain.ClockTime `json:"time"`
	AvailableCount int              `json:"availableCount"`
}

type Service struct {
	config   ConfigProvider
	bookings BookingSource
	now      func() time.Time
	loc      *time.Location
	recorder Recorder
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the clinic time zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func NewService(config ConfigProvider, bookings BookingSource, opts ...Option) *Service {
	s := &Service{
		config:   config,
		bookings: bookings,
		now:      time.Now,
		loc:      time.Local,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the clinic time zone dates are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Today() time.Time {
	return domain.DateOnly(s.now().In(s.loc))
}

// AvailableSlots returns the open start times on date with the number of therapists free at
// each, ordered by time.
func (s *Service) AvailableSlots(ctx context.Context, date time.Time) (out []TimeSlot, err error) {
	ctx, span := tracer.Start(ctx, "availability.slots")
	defer span.End()
	span.SetAttributes(attribute.String("spadesk.date", domain.FormatDate(date)))

	started := time.Now()
	defer func() {
		s.recorder.ObserveQuery("slots", outcome(err), time.Since(started).Seconds())
		if err != nil {
			span.RecordError(err)
		}
	}()

	cfg, err := s.config.ScheduleConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule config: %w", ErrDataUnavailable, err)
	}

	candidates, err := candidateSlots(cfg, date.Weekday())
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []TimeSlot{}, nil
	}

	rows, err := s.bookings.ListActiveForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("%w: bookings: %w", ErrDataUnavailable, err)
	}

	occupied, unassigned, err := conflictSet(rows, cfg.SlotDurationMinutes)
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.ClockTime]int)
	for _, c := range candidates {
		busy := occupied[c.therapistID]
		for _, slot := range c.slots {
			if _, ok := counts[slot]; !ok {
				counts[slot] = 0
			}
			if !overlapsAny(slot, slot.Add(cfg.SlotDurationMinutes), busy) {
				counts[slot]++
			}
		}
	}

	// An unassigned booking still takes one unit of capacity at its start time.
	for _, t := range unassigned {
		if current, ok := counts[t]; ok && current > 0 {
			counts[t] = current - 1
		}
	}

	out = make([]TimeSlot, 0, len(counts))
	for t, n := range counts {
		if n <= 0 {
			continue
		}
		out = append(out, TimeSlot{Time: t, AvailableCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	span.SetAttributes(attribute.Int("spadesk.slots", len(out)))
	return out, nil
}

// AvailableDates returns the dates among the days consecutive days from start, not before
// today, on which at least one enabled therapist is scheduled. Bookings are not consulted.
// Ranges longer than MaxDateRange are cut to MaxDateRange.
func (s *Service) AvailableDates(ctx context.Context, start time.Time, days int) (out []time.Time, err error) {
	ctx, span := tracer.Start(ctx, "availability.dates")
	defer span.End()
	span.SetAttributes(
		attribute.String("spadesk.start_date", domain.FormatDate(start)),
		attribute.Int("spadesk.days", days),
	)

	started := time.Now()
	defer func() {
		s.recorder.ObserveQuery("dates", outcome(err), time.Since(started).Seconds())
		if err != nil {
			span.RecordError(err)
		}
	}()

	if days <= 0 {
		return []time.Time{}, nil
	}
	if days > MaxDateRange {
		days = MaxDateRange
	}

	cfg, err := s.config.ScheduleConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule config: %w", ErrDataUnavailable, err)
	}

	var scheduled [7]bool
	for _, t := range cfg.Therapists {
		if !t.Enabled {
			continue
		}
		for _, slot := range t.Schedule {
			if slot.DayOfWeek >= 0 && slot.DayOfWeek < len(scheduled) {
				scheduled[slot.DayOfWeek] = true
			}
		}
	}

	today := s.Today()
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.loc)

	out = make([]time.Time, 0, days)
	for i := 0; i < days; i++ {
		d := first.AddDate(0, 0, i)
		if d.Before(today) {
			continue
		}
		if scheduled[d.Weekday()] {
			out = append(out, d)
		}
	}
	return out, nil
}

type therapistSlots struct {
	therapistID uuid.UUID
	slots       []domain.ClockTime
}

func candidateSlots(cfg domain.ScheduleConfig, day time.Weekday) ([]therapistSlots, error) {
	var out []therapistSlots
	for _, t := range cfg.Therapists {
		if !t.Enabled {
			continue
		}
		var slots []domain.ClockTime
		scheduled := false
		for _, window := range t.Schedule {
			if window.DayOfWeek != int(day) {
				continue
			}
			scheduled = true
			start, err := domain.ParseClockTime(window.StartTime)
			if err != nil {
				return nil, fmt.Errorf("%w: therapist %s schedule: %w", ErrDataUnavailable, t.ID, err)
			}
			end, err := domain.ParseClockTime(window.EndTime)
			if err != nil {
				return nil, fmt.Errorf("%w: therapist %s schedule: %w", ErrDataUnavailable, t.ID, err)
			}
			slots = append(slots, domain.GenerateSlots(start, end, cfg.SlotDurationMinutes, cfg.BookingBufferMinutes)...)
		}
		if scheduled {
			out = append(out, therapistSlots{therapistID: t.ID, slots: slots})
		}
	}
	return out, nil
}

type timeRange struct {
	start domain.ClockTime
	end   domain.ClockTime
}

func conflictSet(rows []domain.Booking, duration int) (map[uuid.UUID][]timeRange, []domain.ClockTime, error) {
	occupied := make(map[uuid.UUID][]timeRange)
	var unassigned []domain.ClockTime

	for _, b := range rows {
		if !b.Status.Active() || b.StartTime == "" {
			continue
		}
		start, err := domain.ParseClockTime(b.StartTime)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w: booking %s start_time %q", ErrDataUnavailable, ErrMalformedBookingTime, b.ID, b.StartTime)
		}
		if b.Unassigned() {
			unassigned = append(unassigned, start)
			continue
		}

		// Bookings without an end time borrow the current global slot duration.
		end := start.Add(duration)
		if b.EndTime != nil && *b.EndTime != "" {
			end, err = domain.ParseClockTime(*b.EndTime)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %w: booking %s end_time %q", ErrDataUnavailable, ErrMalformedBookingTime, b.ID, *b.EndTime)
			}
		}
		occupied[*b.TherapistID] = append(occupied[*b.TherapistID], timeRange{start: start, end: end})
	}
	return occupied, unassigned, nil
}

func overlapsAny(start, end domain.ClockTime, busy []timeRange) bool {
	for _, b := range busy {
		if domain.Overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedBookingTime):
		return "malformed"
	case errors.Is(err, ErrDataUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

type noopRecorder struct{}

func (noopRecorder) ObserveQuery(string, string, float64) {}
