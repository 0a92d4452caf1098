package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"spadesk/backend/internal/domain"
	"spadesk/backend/internal/store"
)

const settingsRowID = 1

type ClinicRepo struct {
	db bun.IDB
}

func NewClinicRepo(db bun.IDB) *ClinicRepo {
	return &ClinicRepo{db: db}
}

func (r *ClinicRepo) ListTherapists(ctx context.Context) ([]domain.Therapist, error) {
	var rows []domain.Therapist
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("name ASC, created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ClinicRepo) GetTherapist(ctx context.Context, id uuid.UUID) (domain.Therapist, error) {
	var out domain.Therapist
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Therapist{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Therapist{}, err
	}
	return out, nil
}

func (r *ClinicRepo) CreateTherapist(ctx context.Context, t domain.Therapist) (domain.Therapist, error) {
	m := t
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Therapist{}, err
	}
	return m, nil
}

func (r *ClinicRepo) UpdateTherapist(ctx context.Context, t domain.Therapist) (domain.Therapist, error) {
	m := t
	res, err := r.db.NewUpdate().
		Model(&m).
		Column("name", "enabled", "schedule", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Therapist{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Therapist{}, err
	}
	if affected == 0 {
		return domain.Therapist{}, store.ErrNotFound
	}
	return m, nil
}

func (r *ClinicRepo) Settings(ctx context.Context) (domain.ScheduleSettings, error) {
	var out domain.ScheduleSettings
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", settingsRowID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultScheduleSettings(), nil
	}
	if err != nil {
		return domain.ScheduleSettings{}, err
	}
	return out, nil
}

func (r *ClinicRepo) SaveSettings(ctx context.Context, s domain.ScheduleSettings) (domain.ScheduleSettings, error) {
	m := s
	m.ID = settingsRowID
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("slot_duration_minutes = EXCLUDED.slot_duration_minutes").
		Set("booking_buffer_minutes = EXCLUDED.booking_buffer_minutes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.ScheduleSettings{}, err
	}
	return m, nil
}
