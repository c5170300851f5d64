package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nharju/sensorpush-logger/internal/gatt"
	"github.com/nharju/sensorpush-logger/internal/sink"
	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

// Config is the immutable runtime config of a Poller.
type Config struct {
	// SensorName selects the first discovered peripheral whose advertised
	// name contains it as a substring.
	SensorName string

	// Attempts is the number of tries of a whole cycle before giving up.
	Attempts int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Poller runs the discover-read-persist cycle against one peripheral.
type Poller struct {
	scanner Scanner
	sink    sink.Sink
	cfg     Config
	logger  *slog.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// New creates a poller. Zero Attempts and RetryDelay fall back to 5 tries
// with 10 second pauses.
func New(scanner Scanner, s sink.Sink, cfg Config) (*Poller, error) {
	if cfg.SensorName == "" {
		return nil, errors.New("poller: sensor name required")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		scanner: scanner,
		sink:    s,
		cfg:     cfg,
		logger:  cfg.Logger,
		sleep:   time.Sleep,
	}, nil
}

// Run performs one cycle with the retry policy wrapped around the whole of
// it. Not-found is terminal and returned immediately; any other failure is
// retried up to the configured attempt count with a fixed delay in between.
// Exhaustion returns the last error; the caller logs it and waits for the
// next scheduled tick.
func (p *Poller) Run(ctx context.Context) (sensor.Record, error) {
	var lastErr error
	for i := 0; i < p.cfg.Attempts; i++ {
		if i > 0 {
			p.logger.LogAttrs(ctx, slog.LevelWarn, "Retrying cycle",
				slog.Int("attempt", i+1),
				slog.Int("attempts", p.cfg.Attempts),
				slog.Any("error", lastErr))
			p.sleep(p.cfg.RetryDelay)
		}
		rec, err := p.RunCycle(ctx)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrSensorNotFound) || ctx.Err() != nil {
			return sensor.Record{}, err
		}
		lastErr = err
	}
	return sensor.Record{}, fmt.Errorf("all %d attempts failed: %w", p.cfg.Attempts, lastErr)
}

// RunCycle performs exactly one discover-read-persist cycle.
func (p *Poller) RunCycle(ctx context.Context) (sensor.Record, error) {
	p.logger.Info("Scanning for devices")
	devices, err := p.scanner.Scan(ctx)
	if err != nil {
		return sensor.Record{}, fmt.Errorf("scan: %w", err)
	}
	var device Device
	for _, d := range devices {
		if d.Name() != "" && strings.Contains(d.Name(), p.cfg.SensorName) {
			device = d
			break
		}
	}
	if device == nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "Sensor not found", slog.String("name", p.cfg.SensorName))
		return sensor.Record{}, fmt.Errorf("%w: no advertised name contains %q", ErrSensorNotFound, p.cfg.SensorName)
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "Found sensor", slog.String("device", device.Name()))

	conn, err := device.Connect(ctx)
	if err != nil {
		return sensor.Record{}, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	rec := p.readAttributes(ctx, conn)
	rec.DeviceName = device.Name()

	filtered := rec.Filter()
	if dropped := filtered.DroppedFields(rec); len(dropped) > 0 {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "Dropped invalid fields", slog.Any("fields", dropped))
	}
	if filtered.Empty() {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "Skipped persistence, no valid data",
			slog.String("device", device.Name()))
		return filtered, nil
	}
	if err := p.sink.Write(ctx, filtered); err != nil {
		// The cycle still counts as attempted; persistence is not retried.
		p.logger.LogAttrs(ctx, slog.LevelError, "Failed to persist record", slog.Any("error", err))
		return filtered, nil
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "Persisted record", slog.String("device", device.Name()))
	return filtered, nil
}

// readAttributes triggers and reads each characteristic in order. Failures
// are isolated per attribute: the field stays absent and the rest continue.
func (p *Poller) readAttributes(ctx context.Context, conn Conn) sensor.Record {
	var rec sensor.Record
	for _, char := range gatt.Characteristics {
		if err := conn.WriteAttribute(char, gatt.TriggerPayload); err != nil {
			p.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to trigger sample",
				slog.String("characteristic", char), slog.Any("error", err))
			continue
		}
		payload, err := conn.ReadAttribute(char)
		if err != nil {
			p.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to read characteristic",
				slog.String("characteristic", char), slog.Any("error", err))
			continue
		}
		value, err := gatt.Apply(&rec, char, payload)
		if err != nil {
			p.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to decode characteristic",
				slog.String("characteristic", char), slog.Any("error", err))
			continue
		}
		p.logger.LogAttrs(ctx, slog.LevelDebug, "Read characteristic",
			slog.String("characteristic", char), slog.String("value", value))
	}
	return rec
}
