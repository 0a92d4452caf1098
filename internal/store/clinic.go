package store

import (
	"context"

	"github.com/google/uuid"

	"spadesk/backend/internal/domain"
)

type ClinicRepository interface {
	ListTherapists(ctx context.Context) ([]domain.Therapist, error)
	GetTherapist(ctx context.Context, id uuid.UUID) (domain.Therapist, error)
	CreateTherapist(ctx context.Context, t domain.Therapist) (domain.Therapist, error)
	UpdateTherapist(ctx context.Context, t domain.Therapist) (domain.Therapist, error)

	// Settings returns the stored settings, or the defaults when none were saved yet.
	Settings(ctx context.Context) (domain.ScheduleSettings, error)
	SaveSettings(ctx context.Context, s domain.ScheduleSettings) (domain.ScheduleSettings, error)
}
