package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

func testRecord() sensor.Record {
	b := sensor.NewCompositeBattery(1.0, 1.0)
	return sensor.Record{
		DeviceName:  "SensorPush HTP.xw DD6",
		Temperature: sensor.Float64Pointer(23.55),
		Humidity:    sensor.Float64Pointer(55.24),
		Pressure:    sensor.Float64Pointer(100325.00),
		Battery:     &b,
	}
}

func newTestCSV(t *testing.T, now time.Time) (*CSVSink, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := NewCSV(CSVConfig{
		Dir: dir,
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)
	return s, dir
}

func readRows(t *testing.T, name string) [][]string {
	t.Helper()
	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVWrite(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.Local)
	s, _ := newTestCSV(t, now)
	require.NoError(t, s.Write(context.Background(), testRecord()))
	require.NoError(t, s.Write(context.Background(), testRecord()))

	rows := readRows(t, s.Filename(now))
	require.Len(t, rows, 3, "header plus two data rows")
	assert.Equal(t, []string{
		"Timestamp",
		"temperature_c",
		"humidity_percent",
		"pressure_pa",
		"battery_voltage_mv",
		"device_name",
	}, rows[0])
	assert.Equal(t, now.Format(time.RFC3339), rows[1][0])
	assert.Equal(t, "23.55", rows[1][1])
	assert.Equal(t, "55.24", rows[1][2])
	assert.Equal(t, "100325.00", rows[1][3])
	assert.Equal(t, "1.000 V (Temperature: 1.00°C)", rows[1][4])
	assert.Equal(t, "SensorPush HTP.xw DD6", rows[1][5])
}

func TestCSVFilePerHour(t *testing.T) {
	t.Parallel()

	s, _ := newTestCSV(t, time.Time{})
	a := time.Date(2026, time.March, 14, 9, 59, 0, 0, time.Local)
	b := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.Local)
	assert.NotEqual(t, s.Filename(a), s.Filename(b))
	assert.True(t, strings.HasSuffix(s.Filename(a), "sensor_data_2026-03-14_09.csv"))
}

func TestCSVMissingFields(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.Local)
	s, _ := newTestCSV(t, now)
	rec := sensor.Record{
		DeviceName:  "SensorPush HTP.xw DD6",
		Temperature: sensor.Float64Pointer(21.00),
	}
	require.NoError(t, s.Write(context.Background(), rec))

	rows := readRows(t, s.Filename(now))
	require.Len(t, rows, 2)
	assert.Equal(t, "21.00", rows[1][1])
	assert.Equal(t, "", rows[1][2])
	assert.Equal(t, "", rows[1][3])
	assert.Equal(t, "", rows[1][4])
}

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.Local)
	s, _ := newTestCSV(t, now)
	in := testRecord()
	require.NoError(t, s.Write(context.Background(), in))

	rows := readRows(t, s.Filename(now))
	require.Len(t, rows, 2)
	out := parseRow(t, rows[1])
	assert.Equal(t, in, out)
}

func TestCSVAppendsNeverTruncates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.Local)
	s, _ := newTestCSV(t, now)
	require.NoError(t, s.Write(context.Background(), testRecord()))
	first := readRows(t, s.Filename(now))

	// A fresh sink against the same directory and hour must append after the
	// existing rows without re-writing the header.
	s2, err := NewCSV(CSVConfig{
		Dir: filepath.Dir(s.Filename(now)),
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NoError(t, s2.Write(context.Background(), testRecord()))

	rows := readRows(t, s.Filename(now))
	require.Len(t, rows, len(first)+1)
	assert.Equal(t, first, rows[:len(first)])
}

// parseRow rebuilds a record from a written CSV row, the inverse of the
// sink's formatting.
func parseRow(t *testing.T, row []string) sensor.Record {
	t.Helper()
	require.Len(t, row, 6)
	rec := sensor.Record{DeviceName: row[5]}
	if row[1] != "" {
		v, err := strconv.ParseFloat(row[1], 64)
		require.NoError(t, err)
		rec.Temperature = &v
	}
	if row[2] != "" {
		v, err := strconv.ParseFloat(row[2], 64)
		require.NoError(t, err)
		rec.Humidity = &v
	}
	if row[3] != "" {
		v, err := strconv.ParseFloat(row[3], 64)
		require.NoError(t, err)
		rec.Pressure = &v
	}
	if row[4] != "" {
		b := parseBattery(t, row[4])
		rec.Battery = &b
	}
	return rec
}

func parseBattery(t *testing.T, cell string) sensor.Battery {
	t.Helper()
	if !strings.Contains(cell, " V (Temperature: ") {
		v, err := strconv.ParseFloat(cell, 64)
		require.NoError(t, err)
		return sensor.NewBattery(v)
	}
	var volts, temp float64
	_, err := fmt.Sscanf(cell, "%f V (Temperature: %f°C)", &volts, &temp)
	require.NoError(t, err)
	return sensor.NewCompositeBattery(volts, temp)
}
