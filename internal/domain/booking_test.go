package domain

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from BookingStatus
		to   BookingStatus
		want bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusCheckedIn, true},
		{BookingStatusConfirmed, BookingStatusCheckedIn, true},
		{BookingStatusCheckedIn, BookingStatusInProgress, true},
		{BookingStatusInProgress, BookingStatusDone, true},
		{BookingStatusInProgress, BookingStatusCancelled, false},
		{BookingStatusDone, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusPending, BookingStatusDone, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("CanTransitionTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBookingStatus_Active(t *testing.T) {
	for _, s := range InactiveBookingStatuses {
		if s.Active() {
			t.Fatalf("%s must be inactive", s)
		}
	}
	if !BookingStatusPending.Active() || !BookingStatus("").Active() {
		t.Fatalf("pending and empty statuses must be active")
	}
}

func TestBooking_BeforeAppendModelSyncsMinutes(t *testing.T) {
	end := "11:30"
	b := &Booking{StartTime: "10:15", EndTime: &end}
	if err := b.BeforeAppendModel(context.Background(), &bun.InsertQuery{}); err != nil {
		t.Fatalf("BeforeAppendModel error: %v", err)
	}
	if b.StartMinute != 615 || b.EndMinute != 690 {
		t.Fatalf("minutes = %d-%d, want 615-690", b.StartMinute, b.EndMinute)
	}
	if b.Status != BookingStatusPending {
		t.Fatalf("status = %q, want %q", b.Status, BookingStatusPending)
	}
	if b.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("expected generated id")
	}

	open := &Booking{StartTime: "09:00"}
	if err := open.BeforeAppendModel(context.Background(), &bun.InsertQuery{}); err != nil {
		t.Fatalf("BeforeAppendModel error: %v", err)
	}
	if open.StartMinute != open.EndMinute {
		t.Fatalf("booking without end time should get an empty range, got %d-%d", open.StartMinute, open.EndMinute)
	}
}

func TestBooking_SameRequest(t *testing.T) {
	therapist := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	other := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	base := Booking{
		BookingDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		StartTime:   "10:00",
		ClientName:  "Ada",
		ClientPhone: "+15550100",
		Status:      BookingStatusConfirmed,
	}

	tests := []struct {
		name   string
		mutate func(*Booking)
		want   bool
	}{
		{"identical", func(b *Booking) {}, true},
		{"status and notes are not part of the request", func(b *Booking) { b.Status = BookingStatusPending; b.Notes = "late" }, true},
		{"different start", func(b *Booking) { b.StartTime = "11:00" }, false},
		{"different client", func(b *Booking) { b.ClientName = "Grace" }, false},
		{"assigned vs unassigned", func(b *Booking) { b.TherapistID = &therapist }, false},
		{"different date", func(b *Booking) { b.BookingDate = b.BookingDate.AddDate(0, 0, 1) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := base
			tt.mutate(&b)
			if got := base.SameRequest(b); got != tt.want {
				t.Fatalf("SameRequest = %v, want %v", got, tt.want)
			}
		})
	}

	a, b := base, base
	a.TherapistID, b.TherapistID = &therapist, &other
	if a.SameRequest(b) {
		t.Fatal("different therapists must not match")
	}
}
