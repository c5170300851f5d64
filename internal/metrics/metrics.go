package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

var (
	gaugeTemperature = newGauge("sensor_temperature_celsius", "Air temperature (units: degrees Celsius)")
	gaugeHumidity    = newGauge("sensor_humidity_percent", "Relative humidity (units: %)")
	gaugePressure    = newGauge("sensor_pressure_pascal", "Barometric pressure (units: Pa)")
	gaugeBattery     = newGauge("sensor_battery_volts", "Battery voltage (units: V)")

	cycleCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_cycles_total",
		Help: "Poll cycle outcomes",
	}, []string{"result"})
)

func newGauge(name, help string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, []string{"device_name"})
}

// Observe publishes the record's fields to the gauges.
func Observe(rec sensor.Record) {
	if rec.Temperature != nil {
		gaugeTemperature.WithLabelValues(rec.DeviceName).Set(*rec.Temperature)
	}
	if rec.Humidity != nil {
		gaugeHumidity.WithLabelValues(rec.DeviceName).Set(*rec.Humidity)
	}
	if rec.Pressure != nil {
		gaugePressure.WithLabelValues(rec.DeviceName).Set(*rec.Pressure)
	}
	if rec.Battery != nil {
		gaugeBattery.WithLabelValues(rec.DeviceName).Set(rec.Battery.Volts)
	}
}

// CountCycle records one cycle outcome: success, skipped, not_found or failed.
func CountCycle(result string) {
	cycleCounter.WithLabelValues(result).Inc()
}

// Handler exposes the registered metrics over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
