package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

type fakeExecer struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.CommandTag{}, f.err
}

func newTestPostgres(db Execer, now time.Time) *PostgresSink {
	return newPostgres(db, PostgresConfig{
		Table: "sensor_data",
		Now:   func() time.Time { return now },
	})
}

func TestPostgresWrite(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	db := &fakeExecer{}
	s := newTestPostgres(db, now)
	require.NoError(t, s.Write(context.Background(), testRecord()))

	assert.Equal(t,
		"INSERT INTO sensor_data (timestamp, temperature_c, humidity_percent, pressure_pa, battery_voltage_mv, device_name) VALUES ($1, $2, $3, $4, $5, $6)",
		db.sql)
	require.Len(t, db.args, 6)
	assert.Equal(t, now, db.args[0])
	assert.Equal(t, 23.55, *db.args[1].(*float64))
	assert.Equal(t, 55.24, *db.args[2].(*float64))
	assert.Equal(t, 100325.00, *db.args[3].(*float64))
	// Composite battery readings land in the column as millivolts.
	assert.InDelta(t, 1000.0, *db.args[4].(*float64), 1e-9)
	assert.Equal(t, "SensorPush HTP.xw DD6", *db.args[5].(*string))
}

func TestPostgresWriteSimulatedBattery(t *testing.T) {
	t.Parallel()

	db := &fakeExecer{}
	s := newTestPostgres(db, time.Now())
	b := sensor.NewBattery(3.712)
	rec := sensor.Record{DeviceName: "SimulatedSensor-1", Battery: &b}
	require.NoError(t, s.Write(context.Background(), rec))

	// Plain numeric readings pass through without millivolt scaling.
	assert.InDelta(t, 3.712, *db.args[4].(*float64), 1e-9)
}

func TestPostgresWriteMissingFields(t *testing.T) {
	t.Parallel()

	db := &fakeExecer{}
	s := newTestPostgres(db, time.Now())
	rec := sensor.Record{Temperature: sensor.Float64Pointer(21.5)}
	require.NoError(t, s.Write(context.Background(), rec))

	require.Len(t, db.args, 6)
	assert.Nil(t, db.args[2])
	assert.Nil(t, db.args[3])
	assert.Nil(t, db.args[4])
	assert.Nil(t, db.args[5])
}

func TestPostgresWriteError(t *testing.T) {
	t.Parallel()

	insertErr := errors.New("relation does not exist")
	db := &fakeExecer{err: insertErr}
	s := newTestPostgres(db, time.Now())
	err := s.Write(context.Background(), testRecord())
	assert.ErrorIs(t, err, insertErr)
}
