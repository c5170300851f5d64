package sensor

import (
	"fmt"
	"math"
	"strconv"
)

// Column names shared by the CSV and Postgres sinks.
const (
	ColumnTimestamp      = "timestamp"
	ColumnTemperature    = "temperature_c"
	ColumnHumidity       = "humidity_percent"
	ColumnPressure       = "pressure_pa"
	ColumnBatteryVoltage = "battery_voltage_mv"
	ColumnDeviceName     = "device_name"
)

// Columns lists the persisted columns in their fixed order, timestamp first.
var Columns = []string{
	ColumnTimestamp,
	ColumnTemperature,
	ColumnHumidity,
	ColumnPressure,
	ColumnBatteryVoltage,
	ColumnDeviceName,
}

// Battery is one battery reading. Live readings carry the sensor's internal
// temperature alongside the voltage; simulated readings are voltage only.
type Battery struct {
	Volts      float64
	SensorTemp float64
	hasTemp    bool
}

// NewBattery returns a plain voltage-only reading.
func NewBattery(volts float64) Battery {
	return Battery{Volts: volts}
}

// NewCompositeBattery returns a reading decoded from the device's composite
// battery payload.
func NewCompositeBattery(volts, sensorTemp float64) Battery {
	return Battery{Volts: volts, SensorTemp: sensorTemp, hasTemp: true}
}

// Composite reports whether the reading carries the sensor's internal
// temperature.
func (b Battery) Composite() bool {
	return b.hasTemp
}

func (b Battery) String() string {
	if b.hasTemp {
		return fmt.Sprintf("%.3f V (Temperature: %.2f°C)", b.Volts, b.SensorTemp)
	}
	return strconv.FormatFloat(b.Volts, 'f', 3, 64)
}

// Millivolts returns the value destined for the battery_voltage_mv column:
// volts scaled to millivolts for composite readings, the raw numeric
// unchanged otherwise.
func (b Battery) Millivolts() float64 {
	if b.hasTemp {
		return b.Volts * 1000
	}
	return b.Volts
}

// Record is one measurement cycle's worth of data. Measurement fields are
// pointers so that a failed or filtered-out read is distinguishable from a
// zero value.
type Record struct {
	DeviceName  string
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	Battery     *Battery
}

// Filter returns a copy of the record with invalid fields removed: nil
// pointers stay absent, NaN measurements and empty device names are dropped.
// Applying Filter to its own result is a no-op.
func (r Record) Filter() Record {
	out := Record{DeviceName: r.DeviceName}
	if valid(r.Temperature) {
		out.Temperature = r.Temperature
	}
	if valid(r.Humidity) {
		out.Humidity = r.Humidity
	}
	if valid(r.Pressure) {
		out.Pressure = r.Pressure
	}
	if r.Battery != nil && !math.IsNaN(r.Battery.Volts) {
		out.Battery = r.Battery
	}
	return out
}

// Empty reports whether the record holds no measurements at all.
func (r Record) Empty() bool {
	return r.Temperature == nil && r.Humidity == nil && r.Pressure == nil && r.Battery == nil
}

// DroppedFields names the measurement fields present in before but absent
// from r, for logging partially filtered records.
func (r Record) DroppedFields(before Record) []string {
	var dropped []string
	if before.Temperature != nil && r.Temperature == nil {
		dropped = append(dropped, ColumnTemperature)
	}
	if before.Humidity != nil && r.Humidity == nil {
		dropped = append(dropped, ColumnHumidity)
	}
	if before.Pressure != nil && r.Pressure == nil {
		dropped = append(dropped, ColumnPressure)
	}
	if before.Battery != nil && r.Battery == nil {
		dropped = append(dropped, ColumnBatteryVoltage)
	}
	if before.DeviceName != "" && r.DeviceName == "" {
		dropped = append(dropped, ColumnDeviceName)
	}
	return dropped
}

func valid(v *float64) bool {
	return v != nil && !math.IsNaN(*v)
}

// Float64Pointer is a convenience for building records literally.
func Float64Pointer(v float64) *float64 {
	return &v
}
