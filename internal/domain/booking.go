package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusCheckedIn  BookingStatus = "checked_in"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusDone       BookingStatus = "done"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// InactiveBookingStatuses no longer occupy capacity.
var InactiveBookingStatuses = []BookingStatus{BookingStatusCancelled, BookingStatusDone}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCheckedIn, BookingStatusCancelled},
	BookingStatusConfirmed:  {BookingStatusCheckedIn, BookingStatusCancelled},
	BookingStatusCheckedIn:  {BookingStatusInProgress, BookingStatusCancelled},
	BookingStatusInProgress: {BookingStatusDone},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCheckedIn,
		BookingStatusInProgress, BookingStatusDone, BookingStatusCancelled:
		return true
	}
	return false
}

// Active reports whether a booking in this status still consumes a slot.
// An empty status is treated as active.
func (s BookingStatus) Active() bool {
	return s != BookingStatusCancelled && s != BookingStatusDone
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID          uuid.UUID     `bun:"id,pk,type:uuid"`
	BookingDate time.Time     `bun:"booking_date,type:date,notnull"`
	StartTime   string        `bun:"start_time,notnull"`
	EndTime     *string       `bun:"end_time"`
	StartMinute int           `bun:"start_minute,notnull"`
	EndMinute   int           `bun:"end_minute,notnull"`
	TherapistID *uuid.UUID    `bun:"therapist_id,type:uuid"`
	Status      BookingStatus `bun:"status,notnull"`
	ClientName  string        `bun:"client_name,notnull"`
	ClientPhone string        `bun:"client_phone"`
	ClientEmail string        `bun:"client_email"`
	ServiceName string        `bun:"service_name"`
	Notes       string        `bun:"notes"`
	CreatedAt   time.Time     `bun:"created_at,notnull"`
	UpdatedAt   time.Time     `bun:"updated_at,notnull"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.Status == "" {
			b.Status = BookingStatusPending
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
		b.syncMinutes()
	case *bun.UpdateQuery:
		b.UpdatedAt = now
		b.syncMinutes()
	}
	return nil
}

// syncMinutes keeps the integer range columns used by the overlap constraint in step with
// the HH:MM columns. A booking without an end time gets an empty range.
func (b *Booking) syncMinutes() {
	start, err := ParseClockTime(b.StartTime)
	if err != nil {
		return
	}
	b.StartMinute = start.Minutes()
	b.EndMinute = b.StartMinute
	if b.EndTime == nil {
		return
	}
	if end, err := ParseClockTime(*b.EndTime); err == nil {
		b.EndMinute = end.Minutes()
	}
}

func (b Booking) Unassigned() bool {
	return b.TherapistID == nil || *b.TherapistID == uuid.Nil
}

// SameRequest reports whether two bookings describe the same client request. Replays of an
// idempotency key must match on these fields.
func (b Booking) SameRequest(other Booking) bool {
	if FormatDate(b.BookingDate) != FormatDate(other.BookingDate) ||
		b.StartTime != other.StartTime ||
		b.ClientName != other.ClientName ||
		b.ClientPhone != other.ClientPhone ||
		b.ClientEmail != other.ClientEmail ||
		b.ServiceName != other.ServiceName {
		return false
	}
	if b.Unassigned() != other.Unassigned() {
		return false
	}
	return b.Unassigned() || *b.TherapistID == *other.TherapistID
}
