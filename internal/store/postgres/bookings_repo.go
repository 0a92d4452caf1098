package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"spadesk/backend/internal/domain"
	"spadesk/backend/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
	pgForeignKeyMissing  = "23503"

	bookingsOverlapConstraint = "bookings_no_overlap"
)

type BookingRepo struct {
	db bun.IDB
}

func NewBookingRepo(db bun.IDB) *BookingRepo {
	return &BookingRepo{db: db}
}

func (r *BookingRepo) Create(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b
	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err == nil {
		return m, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return domain.Booking{}, mapWriteError(err)
	}

	// Same id means the same idempotency key. Replays must describe the same booking.
	existing, selectErr := r.Get(ctx, m.ID)
	if selectErr != nil {
		return domain.Booking{}, err
	}
	if !existing.SameRequest(b) {
		return domain.Booking{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	var out domain.Booking
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Booking{}, mapWriteError(err)
	}
	return out, nil
}

func (r *BookingRepo) ListActiveForDate(ctx context.Context, date time.Time) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := r.db.NewSelect().
		Model(&rows).
		Where("booking_date = ?", domain.FormatDate(date)).
		Where("status NOT IN (?)", bun.In(domain.InactiveBookingStatuses)).
		OrderExpr("start_minute ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListForDate(ctx context.Context, date time.Time) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := r.db.NewSelect().
		Model(&rows).
		Where("booking_date = ?", domain.FormatDate(date)).
		OrderExpr("start_minute ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListForTherapist(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := r.db.NewSelect().
		Model(&rows).
		Where("therapist_id = ?", therapistID).
		Where("booking_date = ?", domain.FormatDate(date)).
		OrderExpr("start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) (domain.Booking, error) {
	var out domain.Booking
	err := r.db.NewUpdate().
		Model(&out).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Booking{}, mapWriteError(err)
	}
	return out, nil
}

// AssignTherapist relies on bookings_no_overlap to reject double-booking the therapist.
func (r *BookingRepo) AssignTherapist(ctx context.Context, id uuid.UUID, therapistID uuid.UUID) (domain.Booking, error) {
	var out domain.Booking
	err := r.db.NewUpdate().
		Model(&out).
		Set("therapist_id = ?", therapistID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Booking{}, mapWriteError(err)
	}
	return out, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == bookingsOverlapConstraint:
			return store.ErrConflict
		case pgErr.Code == pgForeignKeyMissing:
			return store.ErrNotFound
		}
	}
	return err
}
