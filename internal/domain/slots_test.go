package domain

import (
	"testing"
)

func TestGenerateSlots_CountMatchesWindowArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		end      string
		duration int
		buffer   int
	}{
		{name: "exact fit", start: "10:00", end: "12:00", duration: 60, buffer: 0},
		{name: "with buffer", start: "09:00", end: "17:00", duration: 45, buffer: 15},
		{name: "leftover minutes", start: "09:00", end: "10:50", duration: 30, buffer: 10},
		{name: "single slot", start: "10:00", end: "11:00", duration: 60, buffer: 30},
		{name: "window shorter than duration", start: "10:00", end: "10:30", duration: 60, buffer: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := MustClockTime(tt.start)
			end := MustClockTime(tt.end)
			w := end.Minutes() - start.Minutes()

			want := 0
			if w >= tt.duration {
				want = (w-tt.duration)/(tt.duration+tt.buffer) + 1
			}

			got := GenerateSlots(start, end, tt.duration, tt.buffer)
			if len(got) != want {
				t.Fatalf("len(slots) = %d, want %d (%v)", len(got), want, got)
			}
			for i := 1; i < len(got); i++ {
				if got[i]-got[i-1] != ClockTime(tt.duration+tt.buffer) {
					t.Fatalf("step between %s and %s, want %d minutes", got[i-1], got[i], tt.duration+tt.buffer)
				}
			}
			if len(got) > 0 && got[len(got)-1].Add(tt.duration) > end {
				t.Fatalf("last slot %s overruns window end %s", got[len(got)-1], end)
			}
		})
	}
}

func TestGenerateSlots_Example(t *testing.T) {
	got := GenerateSlots(MustClockTime("10:00"), MustClockTime("12:00"), 60, 0)
	if len(got) != 2 || got[0].String() != "10:00" || got[1].String() != "11:00" {
		t.Fatalf("slots = %v, want [10:00 11:00]", got)
	}
}

func TestGenerateSlots_DegenerateInputs(t *testing.T) {
	if got := GenerateSlots(MustClockTime("12:00"), MustClockTime("10:00"), 60, 0); len(got) != 0 {
		t.Fatalf("inverted window produced %v", got)
	}
	if got := GenerateSlots(MustClockTime("10:00"), MustClockTime("10:00"), 30, 0); len(got) != 0 {
		t.Fatalf("empty window produced %v", got)
	}
	if got := GenerateSlots(MustClockTime("10:00"), MustClockTime("12:00"), 0, 0); got != nil {
		t.Fatalf("zero duration produced %v", got)
	}
	if got := GenerateSlots(MustClockTime("10:00"), MustClockTime("12:00"), 30, -30); got != nil {
		t.Fatalf("non-advancing step produced %v", got)
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	ten, eleven, twelve := MustClockTime("10:00"), MustClockTime("11:00"), MustClockTime("12:00")
	if Overlaps(ten, eleven, eleven, twelve) {
		t.Fatalf("adjacent ranges must not overlap")
	}
	if !Overlaps(ten, twelve, eleven, eleven.Add(1)) {
		t.Fatalf("contained range must overlap")
	}
}
