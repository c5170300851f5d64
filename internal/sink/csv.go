package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

var csvHeader = []string{
	"Timestamp",
	sensor.ColumnTemperature,
	sensor.ColumnHumidity,
	sensor.ColumnPressure,
	sensor.ColumnBatteryVoltage,
	sensor.ColumnDeviceName,
}

// CSVConfig configures a CSV file sink.
type CSVConfig struct {
	Dir    string
	Logger *slog.Logger

	// Now is the write-time clock, overridable in tests.
	Now func() time.Time
}

// CSVSink appends records to one comma-separated file per calendar hour.
// Files are only ever appended to, never truncated, so re-running within the
// same hour extends the existing file.
type CSVSink struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewCSV creates a CSV sink writing under cfg.Dir, creating the directory if
// it does not exist.
func NewCSV(cfg CSVConfig) (*CSVSink, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv sink: create directory: %w", err)
	}
	return &CSVSink{
		dir:    cfg.Dir,
		logger: cfg.Logger,
		now:    cfg.Now,
	}, nil
}

// Filename returns the target file for the given write time. One file per
// local date and hour, matching the clock the timestamps are written in.
func (s *CSVSink) Filename(t time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("sensor_data_%s.csv", t.Format("2006-01-02_15")))
}

// Write appends one row, prefixed with the write-time timestamp. A header row
// is written first when the file does not exist yet.
func (s *CSVSink) Write(ctx context.Context, rec sensor.Record) error {
	now := s.now()
	name := s.Filename(now)
	_, statErr := os.Stat(name)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csv sink: open %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("csv sink: write header: %w", err)
		}
	}
	if err := w.Write(row(now, rec)); err != nil {
		return fmt.Errorf("csv sink: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv sink: flush %s: %w", name, err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "Wrote CSV row", slog.String("file", name))
	return nil
}

func (s *CSVSink) Close() error {
	return nil
}

func row(now time.Time, rec sensor.Record) []string {
	return []string{
		now.Format(time.RFC3339),
		formatField(rec.Temperature),
		formatField(rec.Humidity),
		formatField(rec.Pressure),
		formatBattery(rec.Battery),
		rec.DeviceName,
	}
}

func formatField(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatBattery(b *sensor.Battery) string {
	if b == nil {
		return ""
	}
	return b.String()
}
