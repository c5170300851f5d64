package poller

import (
	"context"
	"errors"
)

// Scanner discovers nearby peripherals. Implemented by the BLE transport in
// the ble subpackage and by fakes in tests.
type Scanner interface {
	Scan(ctx context.Context) ([]Device, error)
}

// Device is one discovered peripheral. The handle is only valid for the
// duration of one connection.
type Device interface {
	Name() string
	Connect(ctx context.Context) (Conn, error)
}

// Conn is an established connection to a peripheral, able to read and write
// attributes addressed by characteristic UUID.
type Conn interface {
	WriteAttribute(char string, payload []byte) error
	ReadAttribute(char string) ([]byte, error)
	Close() error
}

// ErrSensorNotFound is returned when no discovered peripheral matches the
// configured name. Terminal for the cycle; never retried.
var ErrSensorNotFound = errors.New("sensor not found")
