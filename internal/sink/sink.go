package sink

import (
	"context"
	"io"

	"github.com/nharju/sensorpush-logger/pkg/sensor"
)

// Sink durably stores one record per call. Implementations do not retry;
// failures are reported to the caller.
type Sink interface {
	Write(ctx context.Context, rec sensor.Record) error
	io.Closer
}
