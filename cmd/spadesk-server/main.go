package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"spadesk/backend/internal/config"
	"spadesk/backend/internal/observability/metrics"
	"spadesk/backend/internal/service/availability"
	"spadesk/backend/internal/service/bookings"
	"spadesk/backend/internal/service/clinic"
	"spadesk/backend/internal/store/postgres"
	grpcTransport "spadesk/backend/internal/transport/grpc"
	httpTransport "spadesk/backend/internal/transport/http"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "spadesk-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "spadesk-server"),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("clinic_timezone", cfg.ClinicLocation.String()),
		slog.String("log_level", cfg.LogLevel),
	)

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		SlowQuery:       cfg.DBSlowQuery,
		Logger:          log,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	availabilityMetrics := metrics.NewAvailabilityMetrics(reg)
	bookingMetrics := metrics.NewBookingMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	bookingRepo := postgres.NewBookingRepo(db)
	clinicSvc := clinic.NewService(postgres.NewClinicRepo(db), log)
	availabilitySvc := availability.NewService(clinicSvc, bookingRepo,
		availability.WithLocation(cfg.ClinicLocation),
		availability.WithRecorder(availabilityMetrics),
	)
	bookingSvc := bookings.NewService(bookingRepo, clinicSvc, availabilitySvc, log).WithRecorder(bookingMetrics)

	var limiter *httpTransport.RedisRateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable; booking rate limit fails open", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
		}
		cancel()
		limiter = httpTransport.NewRedisRateLimiter(rdb, cfg.BookingsPerMinute, time.Minute, "spadesk:rl:bookings").
			OnReject(bookingMetrics.ObserveRateLimited).
			TrustProxies(cfg.TrustedProxies)
	}
	if cfg.JWTSecret == "" {
		log.Warn("auth.jwt_secret not set; staff routes will reject every request")
	}

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpTransport.NewRouter(httpTransport.Deps{
			Availability:   availabilitySvc,
			Bookings:       bookingSvc,
			Clinic:         clinicSvc,
			JWTSecret:      cfg.JWTSecret,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			BookingLimiter: limiter,
			Ready:          func(ctx context.Context) error { return postgres.Ping(ctx, db) },
			Gatherer:       reg,
			Metrics:        httpMetrics,
			Logger:         log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.RecoveryInterceptor(log),
			grpcTransport.DefaultTimeoutInterceptor(cfg.GRPCRequestTimeout),
			grpcTransport.LoggingInterceptor(log),
		),
	)
	grpcTransport.Register(grpcServer, grpcTransport.NewAvailabilityServer(availabilitySvc, bookingSvc, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr), slog.String("grpc_addr", cfg.GRPCAddr()))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}
	shutdown(log, httpServer, grpcServer, cfg.ShutdownTimeout)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func shutdown(log *slog.Logger, hs *http.Server, gs *grpc.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := hs.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		gs.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
