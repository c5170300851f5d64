package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nharju/sensorpush-logger/internal/lockfile"
	"github.com/nharju/sensorpush-logger/internal/metrics"
	"github.com/nharju/sensorpush-logger/internal/poller"
	bletransport "github.com/nharju/sensorpush-logger/internal/poller/ble"
	"github.com/nharju/sensorpush-logger/internal/simulate"
	"github.com/nharju/sensorpush-logger/internal/sink"
)

func run(cmd *cobra.Command, args []string) error {
	var err error
	logger, err = initLogger()
	if err != nil {
		return err
	}

	// The lock is taken before any other I/O and released on every exit
	// path; a returned ErrHeld maps to its own exit code in main.
	lock, err := lockfile.Acquire(viper.GetString("lockfile.path"), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error("Failed to release lockfile", "err", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if addr := viper.GetString("metrics.addr"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logger.LogAttrs(ctx, slog.LevelInfo, "Serving metrics", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server stopped", "err", err)
			}
		}()
	}

	s, err := buildSink(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("Failed to close sink", "err", err)
		}
	}()

	if viper.GetBool("simulate") {
		err = runSimulation(ctx, s)
	} else {
		err = runLive(ctx, s)
	}
	if err != nil {
		return err
	}
	logger.Info("Shutting down")
	return nil
}

func buildSink(ctx context.Context) (sink.Sink, error) {
	if viper.GetBool("local") {
		dir := viper.GetString("csv.dir")
		logger.LogAttrs(ctx, slog.LevelInfo, "Writing to CSV files", slog.String("dir", dir))
		return sink.NewCSV(sink.CSVConfig{Dir: dir, Logger: logger})
	}
	psqlInfo := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetInt("postgres.port"),
		viper.GetString("postgres.username"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.database"),
	)
	logger.LogAttrs(ctx, slog.LevelInfo, "Connecting to Postgres",
		slog.String("host", viper.GetString("postgres.host")),
		slog.Int("port", viper.GetInt("postgres.port")),
		slog.String("database", viper.GetString("postgres.database")),
		slog.String("table", viper.GetString("postgres.table")),
	)
	return sink.NewPostgres(ctx, sink.PostgresConfig{
		ConnString: psqlInfo,
		Table:      viper.GetString("postgres.table"),
		Logger:     logger,
	})
}

// runSimulation synthesizes a record on every tick until interrupted.
func runSimulation(ctx context.Context, s sink.Sink) error {
	interval := viper.GetDuration("simulate.interval")
	logger.LogAttrs(ctx, slog.LevelInfo, "Simulating sensor data", slog.Duration("interval", interval))
	gen := simulate.New()
	for {
		rec := gen.Next().Filter()
		metrics.Observe(rec)
		if err := s.Write(ctx, rec); err != nil {
			logger.Error("Failed to persist simulated record", "err", err)
			metrics.CountCycle("failed")
		} else {
			logger.LogAttrs(ctx, slog.LevelInfo, "Persisted simulated record",
				slog.String("device", rec.DeviceName))
			metrics.CountCycle("success")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// runLive polls the peripheral on every tick until interrupted. Cycle
// failures are logged and waited out; they never stop the loop.
func runLive(ctx context.Context, s sink.Sink) error {
	device, err := linux.NewDevice()
	if err != nil {
		return fmt.Errorf("open ble device: %w", err)
	}
	ble.SetDefaultDevice(device)
	defer func() {
		_ = ble.Stop()
	}()

	scanner := &bletransport.Scanner{
		ScanDuration: viper.GetDuration("ble.scan_duration"),
		Logger:       logger,
	}
	p, err := poller.New(scanner, s, poller.Config{
		SensorName: viper.GetString("sensor.name"),
		Attempts:   viper.GetInt("poll.retries"),
		RetryDelay: viper.GetDuration("poll.retry_delay"),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	interval := viper.GetDuration("poll.interval")
	logger.LogAttrs(ctx, slog.LevelInfo, "Polling sensor",
		slog.String("name", viper.GetString("sensor.name")),
		slog.Duration("interval", interval))
	for {
		rec, err := p.Run(ctx)
		switch {
		case err == nil && rec.Empty():
			metrics.CountCycle("skipped")
		case err == nil:
			metrics.Observe(rec)
			metrics.CountCycle("success")
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, poller.ErrSensorNotFound):
			metrics.CountCycle("not_found")
			logger.LogAttrs(ctx, slog.LevelWarn, "Cycle ended without a sensor", slog.Any("error", err))
		default:
			metrics.CountCycle("failed")
			logger.LogAttrs(ctx, slog.LevelError, "Cycle failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
