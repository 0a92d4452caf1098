package clinic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"spadesk/backend/internal/domain"
	"spadesk/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Service manages the therapist roster and the clinic-wide slot settings.
// It also serves as the schedule configuration source for availability queries.
type Service struct {
	repo store.ClinicRepository
	log  *slog.Logger
}

func NewService(repo store.ClinicRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With(slog.String("component", "service.clinic"))}
}

// ScheduleConfig reads every therapist (enabled or not) and the current settings.
func (s *Service) ScheduleConfig(ctx context.Context) (domain.ScheduleConfig, error) {
	therapists, err := s.repo.ListTherapists(ctx)
	if err != nil {
		return domain.ScheduleConfig{}, fmt.Errorf("list therapists: %w", err)
	}
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		return domain.ScheduleConfig{}, fmt.Errorf("load settings: %w", err)
	}
	return domain.ScheduleConfig{
		Therapists:           therapists,
		SlotDurationMinutes:  settings.SlotDurationMinutes,
		BookingBufferMinutes: settings.BookingBufferMinutes,
	}, nil
}

func (s *Service) ListTherapists(ctx context.Context) ([]domain.Therapist, error) {
	return s.repo.ListTherapists(ctx)
}

type TherapistInput struct {
	Name     string
	Enabled  bool
	Schedule []domain.ScheduleSlot
}

func (s *Service) CreateTherapist(ctx context.Context, in TherapistInput) (domain.Therapist, error) {
	t, err := buildTherapist(in)
	if err != nil {
		return domain.Therapist{}, err
	}
	created, err := s.repo.CreateTherapist(ctx, t)
	if err != nil {
		return domain.Therapist{}, err
	}
	s.log.Info("therapist created", slog.String("therapist_id", created.ID.String()), slog.Int("windows", len(created.Schedule)))
	return created, nil
}

// UpdateTherapist replaces name, enabled flag and the whole weekly schedule.
func (s *Service) UpdateTherapist(ctx context.Context, id uuid.UUID, in TherapistInput) (domain.Therapist, error) {
	if id == uuid.Nil {
		return domain.Therapist{}, validationError("therapist_id is required")
	}
	t, err := buildTherapist(in)
	if err != nil {
		return domain.Therapist{}, err
	}

	current, err := s.repo.GetTherapist(ctx, id)
	if err != nil {
		return domain.Therapist{}, err
	}
	current.Name = t.Name
	current.Enabled = t.Enabled
	current.Schedule = t.Schedule

	updated, err := s.repo.UpdateTherapist(ctx, current)
	if err != nil {
		return domain.Therapist{}, err
	}
	s.log.Info("therapist updated", slog.String("therapist_id", id.String()), slog.Bool("enabled", updated.Enabled))
	return updated, nil
}

func (s *Service) Settings(ctx context.Context) (domain.ScheduleSettings, error) {
	return s.repo.Settings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, slotDuration, buffer int) (domain.ScheduleSettings, error) {
	if slotDuration <= 0 {
		return domain.ScheduleSettings{}, validationError("slot_duration_minutes must be positive")
	}
	if slotDuration > domain.MinutesPerDay {
		return domain.ScheduleSettings{}, validationError("slot_duration_minutes must fit in a day")
	}
	if buffer < 0 {
		return domain.ScheduleSettings{}, validationError("booking_buffer_minutes must not be negative")
	}

	saved, err := s.repo.SaveSettings(ctx, domain.ScheduleSettings{
		ID:                   1,
		SlotDurationMinutes:  slotDuration,
		BookingBufferMinutes: buffer,
	})
	if err != nil {
		return domain.ScheduleSettings{}, err
	}
	s.log.Info("settings updated", slog.Int("slot_duration_minutes", slotDuration), slog.Int("booking_buffer_minutes", buffer))
	return saved, nil
}

// buildTherapist validates day numbers and time formats. Window ordering is not
// checked; an inverted window simply yields no slots.
func buildTherapist(in TherapistInput) (domain.Therapist, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Therapist{}, validationError("name is required")
	}
	schedule := make([]domain.ScheduleSlot, 0, len(in.Schedule))
	for i, w := range in.Schedule {
		if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
			return domain.Therapist{}, validationError(fmt.Sprintf("schedule[%d]: dayOfWeek must be 0..6", i))
		}
		start, err := domain.ParseClockTime(strings.TrimSpace(w.StartTime))
		if err != nil {
			return domain.Therapist{}, validationError(fmt.Sprintf("schedule[%d]: startTime must be HH:MM", i))
		}
		end, err := domain.ParseClockTime(strings.TrimSpace(w.EndTime))
		if err != nil {
			return domain.Therapist{}, validationError(fmt.Sprintf("schedule[%d]: endTime must be HH:MM", i))
		}
		schedule = append(schedule, domain.ScheduleSlot{
			DayOfWeek: w.DayOfWeek,
			StartTime: start.String(),
			EndTime:   end.String(),
		})
	}
	return domain.Therapist{Name: name, Enabled: in.Enabled, Schedule: schedule}, nil
}
