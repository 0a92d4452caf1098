package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"spadesk/backend/internal/domain"
)

type BookingRepository interface {
	Create(ctx context.Context, b domain.Booking) (domain.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	// ListActiveForDate returns bookings on date that still occupy capacity
	// (status not cancelled or done).
	ListActiveForDate(ctx context.Context, date time.Time) ([]domain.Booking, error)
	ListForDate(ctx context.Context, date time.Time) ([]domain.Booking, error)
	ListForTherapist(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) (domain.Booking, error)
	AssignTherapist(ctx context.Context, id uuid.UUID, therapistID uuid.UUID) (domain.Booking, error)
}
