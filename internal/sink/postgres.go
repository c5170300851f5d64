package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

// Execer is the slice of pgxpool.Pool the Postgres sink needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresConfig configures a Postgres sink.
type PostgresConfig struct {
	ConnString string
	Table      string
	Logger     *slog.Logger

	// Now is the write-time clock, overridable in tests.
	Now func() time.Time
}

// PostgresSink inserts one row per record into a fixed table. Insert only, no
// updates or deletes, no internal retry.
type PostgresSink struct {
	db     Execer
	pool   *pgxpool.Pool
	insert string
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgres creates a Postgres sink and verifies connectivity.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("postgres sink: table is required")
	}
	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres sink: ping: %w", err)
	}
	s := newPostgres(pool, cfg)
	s.pool = pool
	return s, nil
}

func newPostgres(db Execer, cfg PostgresConfig) *PostgresSink {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s) VALUES ($1, $2, $3, $4, $5, $6)",
		cfg.Table,
		sensor.ColumnTimestamp,
		sensor.ColumnTemperature,
		sensor.ColumnHumidity,
		sensor.ColumnPressure,
		sensor.ColumnBatteryVoltage,
		sensor.ColumnDeviceName,
	)
	return &PostgresSink{
		db:     db,
		insert: insert,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// Write inserts one row. Missing record fields become NULL columns; the
// battery column receives millivolts for composite readings and the raw
// numeric unchanged for plain ones.
func (s *PostgresSink) Write(ctx context.Context, rec sensor.Record) error {
	var battery *float64
	if rec.Battery != nil {
		mv := rec.Battery.Millivolts()
		battery = &mv
	}
	var name *string
	if rec.DeviceName != "" {
		name = &rec.DeviceName
	}
	_, err := s.db.Exec(ctx, s.insert,
		s.now(),
		rec.Temperature,
		rec.Humidity,
		rec.Pressure,
		battery,
		name,
	)
	if err != nil {
		return fmt.Errorf("postgres sink: insert: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "Inserted row", slog.String("device", rec.DeviceName))
	return nil
}

func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
