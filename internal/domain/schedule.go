package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	DefaultSlotDurationMinutes  = 60
	DefaultBookingBufferMinutes = 0
)

// ScheduleSlot is one weekly availability window. DayOfWeek follows time.Weekday (Sunday = 0).
type ScheduleSlot struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type Therapist struct {
	bun.BaseModel `bun:"table:therapists"`

	ID        uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Name      string         `bun:"name,notnull" json:"name"`
	Enabled   bool           `bun:"enabled,notnull" json:"enabled"`
	Schedule  []ScheduleSlot `bun:"schedule,type:jsonb,notnull" json:"schedule"`
	CreatedAt time.Time      `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time      `bun:"updated_at,notnull" json:"updatedAt"`
}

func (t *Therapist) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if t.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			t.ID = id
		}
		if t.Schedule == nil {
			t.Schedule = []ScheduleSlot{}
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		t.UpdatedAt = now
	}
	return nil
}

// ScheduledOn reports whether the therapist has any window on the weekday.
func (t Therapist) ScheduledOn(day time.Weekday) bool {
	for _, s := range t.Schedule {
		if s.DayOfWeek == int(day) {
			return true
		}
	}
	return false
}

// ScheduleSettings is the single clinic-wide slot configuration row.
type ScheduleSettings struct {
	bun.BaseModel `bun:"table:clinic_settings"`

	ID                   int       `bun:"id,pk" json:"-"`
	SlotDurationMinutes  int       `bun:"slot_duration_minutes,notnull" json:"slotDurationMinutes"`
	BookingBufferMinutes int       `bun:"booking_buffer_minutes,notnull" json:"bookingBufferMinutes"`
	UpdatedAt            time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

func (s *ScheduleSettings) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		s.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func DefaultScheduleSettings() ScheduleSettings {
	return ScheduleSettings{
		ID:                   1,
		SlotDurationMinutes:  DefaultSlotDurationMinutes,
		BookingBufferMinutes: DefaultBookingBufferMinutes,
	}
}

// ScheduleConfig is the read model the availability computation works from.
type ScheduleConfig struct {
	Therapists           []Therapist
	SlotDurationMinutes  int
	BookingBufferMinutes int
}
