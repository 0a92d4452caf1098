package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Availability availabilityAPI
	Bookings     bookingAPI
	Clinic       clinicAPI

	JWTSecret      string
	AllowedOrigins []string
	// BookingLimiter guards public booking creation. Nil disables limiting.
	BookingLimiter *RedisRateLimiter
	// Ready backs /healthz; nil reports healthy.
	Ready    func(ctx context.Context) error
	Gatherer prometheus.Gatherer
	Metrics  requestObserver
	Logger   *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{
		availability: d.Availability,
		bookings:     d.Bookings,
		clinic:       d.Clinic,
		log:          log.With(slog.String("component", "http.handlers")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log, d.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(CORS(d.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				h.log.Warn("readiness check failed", slog.Any("err", err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/availability/dates", h.availableDates)
		r.Get("/availability/slots", h.availableSlots)

		r.Group(func(r chi.Router) {
			if d.BookingLimiter != nil {
				r.Use(d.BookingLimiter.Middleware(log, true))
			}
			r.Post("/bookings", h.createBooking)
		})

		r.Route("/kiosk", func(r chi.Router) {
			r.Use(RequireRole(d.JWTSecret, RoleKiosk, RoleReception, RoleAdmin))
			r.Post("/bookings/{id}/check-in", h.checkIn)
		})

		r.Route("/reception", func(r chi.Router) {
			r.Use(RequireRole(d.JWTSecret, RoleReception, RoleAdmin))
			r.Get("/bookings", h.receptionBookings)
			r.Patch("/bookings/{id}/status", h.updateStatus)
			r.Patch("/bookings/{id}/therapist", h.assignTherapist)
		})

		r.Route("/therapist", func(r chi.Router) {
			r.Use(RequireRole(d.JWTSecret, RoleTherapist))
			r.Get("/bookings", h.therapistBookings)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(d.JWTSecret, RoleAdmin))
			r.Get("/therapists", h.listTherapists)
			r.Post("/therapists", h.createTherapist)
			r.Put("/therapists/{id}", h.updateTherapist)
			r.Get("/settings", h.getSettings)
			r.Put("/settings", h.updateSettings)
		})
	})

	return r
}
