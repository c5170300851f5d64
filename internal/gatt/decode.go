package gatt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

// Characteristic UUIDs of the SensorPush HTP.xw environmental service.
const (
	TemperatureChar = "ef090080-11d6-42ba-93b8-9dd7ec090aa9"
	HumidityChar    = "ef090081-11d6-42ba-93b8-9dd7ec090aa9"
	PressureChar    = "ef090082-11d6-42ba-93b8-9dd7ec090aa9"
	BatteryChar     = "ef090007-11d6-42ba-93b8-9dd7ec090aa9"
)

// Characteristics lists the polled characteristics in read order.
var Characteristics = []string{
	TemperatureChar,
	HumidityChar,
	PressureChar,
	BatteryChar,
}

// TriggerPayload is written to a characteristic to request a fresh sample
// before reading it back.
var TriggerPayload = []byte{0x01, 0x00, 0x00, 0x00}

// DecodeError describes a payload that could not be decoded for a
// characteristic.
type DecodeError struct {
	Char    string
	Payload []byte
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gatt: cannot decode characteristic %s payload %x: %s", e.Char, e.Payload, e.Reason)
}

// Temperature decodes a temperature payload: signed little-endian 16-bit
// hundredths of a degree Celsius.
func Temperature(payload []byte) (float64, error) {
	v, err := int16LE(TemperatureChar, payload)
	if err != nil {
		return 0, err
	}
	return float64(v) / 100, nil
}

// Humidity decodes a relative humidity payload: signed little-endian 16-bit
// hundredths of a percent.
func Humidity(payload []byte) (float64, error) {
	v, err := int16LE(HumidityChar, payload)
	if err != nil {
		return 0, err
	}
	return float64(v) / 100, nil
}

// Pressure decodes a barometric pressure payload: unsigned little-endian
// 16-bit hundredths of a Pascal.
func Pressure(payload []byte) (float64, error) {
	if len(payload) != 2 {
		return 0, &DecodeError{Char: PressureChar, Payload: payload, Reason: "expected 2 bytes"}
	}
	return float64(binary.LittleEndian.Uint16(payload)) / 100, nil
}

// Battery decodes the composite battery payload: bytes 0-1 are unsigned
// little-endian millivolts, bytes 2-3 the sensor's internal temperature in
// signed hundredths of a degree.
func Battery(payload []byte) (sensor.Battery, error) {
	if len(payload) != 4 {
		return sensor.Battery{}, &DecodeError{Char: BatteryChar, Payload: payload, Reason: "expected 4 bytes"}
	}
	volts := float64(binary.LittleEndian.Uint16(payload[:2])) / 1000
	temp := float64(int16(binary.LittleEndian.Uint16(payload[2:]))) / 100
	return sensor.NewCompositeBattery(volts, temp), nil
}

// Hex is the fallback decoding for unrecognized characteristics.
func Hex(payload []byte) string {
	return hex.EncodeToString(payload)
}

// Apply decodes payload according to the characteristic UUID and sets the
// corresponding record field. Unrecognized UUIDs leave the record untouched
// and return the payload's hex form.
func Apply(rec *sensor.Record, char string, payload []byte) (string, error) {
	switch strings.ToLower(char) {
	case TemperatureChar:
		v, err := Temperature(payload)
		if err != nil {
			return "", err
		}
		rec.Temperature = &v
		return fmt.Sprintf("%.2f", v), nil
	case HumidityChar:
		v, err := Humidity(payload)
		if err != nil {
			return "", err
		}
		rec.Humidity = &v
		return fmt.Sprintf("%.2f", v), nil
	case PressureChar:
		v, err := Pressure(payload)
		if err != nil {
			return "", err
		}
		rec.Pressure = &v
		return fmt.Sprintf("%.2f", v), nil
	case BatteryChar:
		b, err := Battery(payload)
		if err != nil {
			return "", err
		}
		rec.Battery = &b
		return b.String(), nil
	default:
		return Hex(payload), nil
	}
}

func int16LE(char string, payload []byte) (int16, error) {
	if len(payload) != 2 {
		return 0, &DecodeError{Char: char, Payload: payload, Reason: "expected 2 bytes"}
	}
	return int16(binary.LittleEndian.Uint16(payload)), nil
}
