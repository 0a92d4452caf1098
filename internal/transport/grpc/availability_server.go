package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"spadesk/backend/internal/domain"
	"spadesk/backend/internal/service/availability"
	"spadesk/backend/internal/service/bookings"
	"spadesk/backend/internal/store"
)

const (
	AvailabilityServiceName = "spadesk.v1.AvailabilityService"
	BookingServiceName      = "spadesk.v1.BookingService"
)

type availabilityService interface {
	AvailableSlots(ctx context.Context, date time.Time) ([]availability.TimeSlot, error)
	AvailableDates(ctx context.Context, start time.Time, days int) ([]time.Time, error)
	Location() *time.Location
	Today() time.Time
}

type bookingService interface {
	Create(ctx context.Context, in bookings.CreateInput) (domain.Booking, error)
}

// AvailabilityServer answers the public availability and booking RPCs.
type AvailabilityServer struct {
	availability availabilityService
	bookings     bookingService
	log          *slog.Logger
}

func NewAvailabilityServer(avail availabilityService, books bookingService, log *slog.Logger) *AvailabilityServer {
	if log == nil {
		log = slog.Default()
	}
	return &AvailabilityServer{
		availability: avail,
		bookings:     books,
		log:          log.With(slog.String("component", "grpc.availability")),
	}
}

// Register attaches both services to s.
func Register(s grpc.ServiceRegistrar, srv *AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
	s.RegisterService(&bookingServiceDesc, srv)
}

func (s *AvailabilityServer) GetAvailableSlots(ctx context.Context, req *GetAvailableSlotsRequest) (*GetAvailableSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailableSlots"))

	if req == nil || strings.TrimSpace(req.Date) == "" {
		log.Warn("invalid request", slog.String("reason", "missing_date"))
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}
	date, err := domain.ParseDate(req.Date, s.availability.Location())
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_date"), slog.String("date", req.Date))
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}

	slots, err := s.availability.AvailableSlots(ctx, date)
	if err != nil {
		return nil, s.statusError(log, "slots query failed", err)
	}

	return &GetAvailableSlotsResponse{Date: domain.FormatDate(date), Slots: slots}, nil
}

func (s *AvailabilityServer) GetAvailableDates(ctx context.Context, req *GetAvailableDatesRequest) (*GetAvailableDatesResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailableDates"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.Days < 0 || req.Days > availability.MaxDateRange {
		log.Warn("invalid request", slog.String("reason", "bad_days"), slog.Int("days", req.Days))
		return nil, status.Errorf(codes.InvalidArgument, "days must be between 0 and %d", availability.MaxDateRange)
	}
	start := s.availability.Today()
	if strings.TrimSpace(req.StartDate) != "" {
		parsed, err := domain.ParseDate(req.StartDate, s.availability.Location())
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "bad_start_date"), slog.String("start_date", req.StartDate))
			return nil, status.Error(codes.InvalidArgument, "startDate must be YYYY-MM-DD")
		}
		start = parsed
	}

	dates, err := s.availability.AvailableDates(ctx, start, req.Days)
	if err != nil {
		return nil, s.statusError(log, "dates query failed", err)
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, domain.FormatDate(d))
	}
	return &GetAvailableDatesResponse{Dates: out}, nil
}

func (s *AvailabilityServer) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := domain.ParseDate(req.Date, s.availability.Location())
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_date"), slog.String("date", req.Date))
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}
	in := bookings.CreateInput{
		Date:           date,
		StartTime:      req.StartTime,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		ClientEmail:    req.ClientEmail,
		ServiceName:    req.ServiceName,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(ctx),
	}
	if strings.TrimSpace(req.TherapistID) != "" {
		id, err := uuid.Parse(strings.TrimSpace(req.TherapistID))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "therapistId must be a UUID")
		}
		in.TherapistID = &id
	}

	b, err := s.bookings.Create(ctx, in)
	if err != nil {
		return nil, s.statusError(log, "booking create failed", err)
	}

	log.Info("booking created", slog.String("booking_id", b.ID.String()), slog.String("date", req.Date))
	return &CreateBookingResponse{Booking: toBookingMessage(b)}, nil
}

func (s *AvailabilityServer) statusError(log *slog.Logger, msg string, err error) error {
	var bErr *bookings.ValidationError
	switch {
	case errors.As(err, &bErr):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, bErr.Error())
	case errors.Is(err, store.ErrConflict):
		log.Info("slot conflict", slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, "That time is no longer available. Pick a different slot.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict")
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different booking. Try again.")
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, availability.ErrDataUnavailable):
		log.Error(msg, slog.Any("err", err))
		return status.Error(codes.Unavailable, "availability data unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		log.Error(msg, slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func toBookingMessage(b domain.Booking) Booking {
	out := Booking{
		ID:          b.ID.String(),
		Date:        domain.FormatDate(b.BookingDate),
		StartTime:   b.StartTime,
		Status:      string(b.Status),
		ClientName:  b.ClientName,
		ServiceName: b.ServiceName,
	}
	if b.EndTime != nil {
		out.EndTime = *b.EndTime
	}
	if !b.Unassigned() {
		out.TherapistID = b.TherapistID.String()
	}
	return out
}

// The descriptors below stand in for protoc output; messages travel with the JSON codec.

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: AvailabilityServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailableSlots", Handler: getAvailableSlotsHandler},
		{MethodName: "GetAvailableDates", Handler: getAvailableDatesHandler},
	},
	Metadata: "spadesk/v1/availability",
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateBooking", Handler: createBookingHandler},
	},
	Metadata: "spadesk/v1/booking",
}

func getAvailableSlotsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAvailableSlotsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*AvailabilityServer)
	if interceptor == nil {
		return s.GetAvailableSlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AvailabilityServiceName + "/GetAvailableSlots"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return s.GetAvailableSlots(ctx, req.(*GetAvailableSlotsRequest))
	})
}

func getAvailableDatesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAvailableDatesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*AvailabilityServer)
	if interceptor == nil {
		return s.GetAvailableDates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AvailabilityServiceName + "/GetAvailableDates"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return s.GetAvailableDates(ctx, req.(*GetAvailableDatesRequest))
	})
}

func createBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateBookingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*AvailabilityServer)
	if interceptor == nil {
		return s.CreateBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + BookingServiceName + "/CreateBooking"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return s.CreateBooking(ctx, req.(*CreateBookingRequest))
	})
}
