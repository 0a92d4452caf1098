package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SlowQuery logs statements slower than this at warn level. Zero disables it.
	SlowQuery time.Duration
	Logger    *slog.Logger
}

// Open connects through the pgx stdlib driver and wraps the pool in bun with the postgres dialect.
func Open(databaseURL string, pool PoolConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if pool.Logger != nil {
		db.AddQueryHook(&queryLogger{log: pool.Logger.With(slog.String("component", "store.postgres")), slow: pool.SlowQuery})
	}
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Ping backs the readiness probe.
func Ping(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return errors.New("postgres: nil db")
	}
	return db.PingContext(ctx)
}

type queryLogger struct {
	log  *slog.Logger
	slow time.Duration
}

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.log.DebugContext(ctx, "query failed",
			slog.String("operation", event.Operation()),
			slog.Duration("elapsed", elapsed),
			slog.Any("err", event.Err),
		)
	case h.slow > 0 && elapsed > h.slow:
		h.log.WarnContext(ctx, "slow query",
			slog.String("operation", event.Operation()),
			slog.Duration("elapsed", elapsed),
		)
	}
}
