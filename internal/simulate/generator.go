package simulate

import (
	"math"
	"math/rand/v2"

	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

// DefaultDeviceName is attached to every synthesized record.
const DefaultDeviceName = "SimulatedSensor-1"

// Generator synthesizes measurement records without a peripheral. Sampled
// ranges match typical indoor conditions: temperature 15-30 °C, humidity
// 40-70 %, pressure 99000-102000 Pa, battery 3.5-4.2 V.
type Generator struct {
	DeviceName string
	Rand       *rand.Rand
}

// New returns a generator with the default device name and rand source.
func New() *Generator {
	return &Generator{DeviceName: DefaultDeviceName}
}

// Next synthesizes one record.
func (g *Generator) Next() sensor.Record {
	battery := sensor.NewBattery(round(g.uniform(3.5, 4.2), 3))
	return sensor.Record{
		DeviceName:  g.DeviceName,
		Temperature: sensor.Float64Pointer(round(g.uniform(15, 30), 2)),
		Humidity:    sensor.Float64Pointer(round(g.uniform(40, 70), 2)),
		Pressure:    sensor.Float64Pointer(round(g.uniform(99000, 102000), 2)),
		Battery:     &battery,
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	if g.Rand != nil {
		return lo + g.Rand.Float64()*(hi-lo)
	}
	return lo + rand.Float64()*(hi-lo)
}

func round(v float64, digits int) float64 {
	scale := math.Pow10(digits)
	return math.Round(v*scale) / scale
}
