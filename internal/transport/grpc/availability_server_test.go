package grpc

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"spadesk/backend/internal/domain"
	"spadesk/backend/internal/service/availability"
	"spadesk/backend/internal/service/bookings"
	"spadesk/backend/internal/store"
)

type fakeAvailability struct {
	slotsFn func(ctx context.Context, date time.Time) ([]availability.TimeSlot, error)
	datesFn func(ctx context.Context, start time.Time, days int) ([]time.Time, error)
	today   time.Time
}

func (f *fakeAvailability) AvailableSlots(ctx context.Context, date time.Time) ([]availability.TimeSlot, error) {
	if f.slotsFn == nil {
		panic("AvailableSlots not configured")
	}
	return f.slotsFn(ctx, date)
}

func (f *fakeAvailability) AvailableDates(ctx context.Context, start time.Time, days int) ([]time.Time, error) {
	if f.datesFn == nil {
		panic("AvailableDates not configured")
	}
	return f.datesFn(ctx, start, days)
}

func (f *fakeAvailability) Location() *time.Location { return time.UTC }

func (f *fakeAvailability) Today() time.Time { return f.today }

type fakeBookings struct {
	createFn func(ctx context.Context, in bookings.CreateInput) (domain.Booking, error)
}

func (f *fakeBookings) Create(ctx context.Context, in bookings.CreateInput) (domain.Booking, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, in)
}

func newTestServer() *AvailabilityServer {
	return NewAvailabilityServer(&fakeAvailability{}, &fakeBookings{}, slog.Default())
}

func TestGetAvailableSlots_InvalidDate(t *testing.T) {
	srv := newTestServer()

	for _, date := range []string{"", "2026-13-01", "05/01/2026"} {
		_, err := srv.GetAvailableSlots(context.Background(), &GetAvailableSlotsRequest{Date: date})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("date %q: code = %s, want %s", date, status.Code(err), codes.InvalidArgument)
		}
	}
}

func TestGetAvailableSlots_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"unavailable", availability.ErrDataUnavailable, codes.Unavailable},
		{"internal", context.Canceled, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewAvailabilityServer(&fakeAvailability{
				slotsFn: func(ctx context.Context, date time.Time) ([]availability.TimeSlot, error) {
					return nil, tt.err
				},
			}, &fakeBookings{}, nil)

			_, err := srv.GetAvailableSlots(context.Background(), &GetAvailableSlotsRequest{Date: "2026-01-05"})
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}
}

func TestGetAvailableDates_DefaultsStartToToday(t *testing.T) {
	today := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	var gotStart time.Time
	srv := NewAvailabilityServer(&fakeAvailability{
		today: today,
		datesFn: func(ctx context.Context, start time.Time, days int) ([]time.Time, error) {
			gotStart = start
			return []time.Time{start, start.AddDate(0, 0, 5)}, nil
		},
	}, &fakeBookings{}, nil)

	resp, err := srv.GetAvailableDates(context.Background(), &GetAvailableDatesRequest{Days: 7})
	if err != nil {
		t.Fatalf("GetAvailableDates error: %v", err)
	}
	if !gotStart.Equal(today) {
		t.Fatalf("start = %s, want %s", gotStart, today)
	}
	if len(resp.Dates) != 2 || resp.Dates[0] != "2026-01-07" || resp.Dates[1] != "2026-01-12" {
		t.Fatalf("dates = %v", resp.Dates)
	}
}

func TestCreateBooking_UsesIdempotencyKeyFromMetadata(t *testing.T) {
	var got bookings.CreateInput
	srv := NewAvailabilityServer(&fakeAvailability{}, &fakeBookings{
		createFn: func(ctx context.Context, in bookings.CreateInput) (domain.Booking, error) {
			got = in
			return domain.Booking{ID: uuid.New(), BookingDate: in.Date, StartTime: in.StartTime, Status: domain.BookingStatusPending}, nil
		},
	}, nil)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", " k-1 "))
	resp, err := srv.CreateBooking(ctx, &CreateBookingRequest{Date: "2026-01-05", StartTime: "10:00", ClientName: "Ada"})
	if err != nil {
		t.Fatalf("CreateBooking error: %v", err)
	}
	if got.IdempotencyKey != "k-1" {
		t.Fatalf("idempotency key = %q, want k-1", got.IdempotencyKey)
	}
	if resp.Booking.Date != "2026-01-05" || resp.Booking.Status != "pending" {
		t.Fatalf("booking = %+v", resp.Booking)
	}
}

func TestCreateBooking_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"conflict", store.ErrConflict, codes.FailedPrecondition},
		{"idempotency", store.ErrIdempotencyConflict, codes.FailedPrecondition},
		{"validation", &bookings.ValidationError{}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewAvailabilityServer(&fakeAvailability{}, &fakeBookings{
				createFn: func(ctx context.Context, in bookings.CreateInput) (domain.Booking, error) {
					return domain.Booking{}, tt.err
				},
			}, nil)

			_, err := srv.CreateBooking(context.Background(), &CreateBookingRequest{Date: "2026-01-05", StartTime: "10:00"})
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}

	srv := newTestServer()
	_, err := srv.CreateBooking(context.Background(), &CreateBookingRequest{Date: "2026-01-05", TherapistID: "nope"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad therapist code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestJSONCodecOverBufconn(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(DefaultTimeoutInterceptor(time.Second)))
	Register(s, NewAvailabilityServer(&fakeAvailability{
		slotsFn: func(ctx context.Context, date time.Time) ([]availability.TimeSlot, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Errorf("expected default deadline")
			}
			return []availability.TimeSlot{{Time: domain.MustClockTime("10:00"), AvailableCount: 2}}, nil
		},
	}, &fakeBookings{}, nil))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName)),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	var resp GetAvailableSlotsResponse
	err = conn.Invoke(context.Background(), "/"+AvailabilityServiceName+"/GetAvailableSlots", &GetAvailableSlotsRequest{Date: "2026-01-05"}, &resp)
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if len(resp.Slots) != 1 || resp.Slots[0].Time.String() != "10:00" || resp.Slots[0].AvailableCount != 2 {
		t.Fatalf("slots = %+v", resp.Slots)
	}
}

func TestGetAvailableDates_RejectsOutOfRangeDays(t *testing.T) {
	// datesFn stays unset: reaching the service would panic.
	srv := NewAvailabilityServer(&fakeAvailability{today: time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)}, &fakeBookings{}, nil)

	for _, days := range []int{-1, availability.MaxDateRange + 1, 1 << 62} {
		_, err := srv.GetAvailableDates(context.Background(), &GetAvailableDatesRequest{Days: days})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("days %d: code = %s, want %s", days, status.Code(err), codes.InvalidArgument)
		}
	}
}

func TestRecoveryInterceptorKeepsServerUp(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoveryInterceptor(nil), DefaultTimeoutInterceptor(time.Second)))
	// slotsFn is unset so GetAvailableSlots panics inside the handler.
	Register(s, NewAvailabilityServer(&fakeAvailability{
		datesFn: func(ctx context.Context, start time.Time, days int) ([]time.Time, error) {
			return []time.Time{start}, nil
		},
		today: time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC),
	}, &fakeBookings{}, nil))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName)),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	var slots GetAvailableSlotsResponse
	err = conn.Invoke(context.Background(), "/"+AvailabilityServiceName+"/GetAvailableSlots", &GetAvailableSlotsRequest{Date: "2026-01-07"}, &slots)
	if status.Code(err) != codes.Internal {
		t.Fatalf("panicking call code = %s, want %s", status.Code(err), codes.Internal)
	}

	var dates GetAvailableDatesResponse
	err = conn.Invoke(context.Background(), "/"+AvailabilityServiceName+"/GetAvailableDates", &GetAvailableDatesRequest{Days: 1}, &dates)
	if err != nil {
		t.Fatalf("follow-up call error: %v", err)
	}
	if len(dates.Dates) != 1 || dates.Dates[0] != "2026-01-07" {
		t.Fatalf("dates = %v", dates.Dates)
	}
}
