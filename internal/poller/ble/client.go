package ble

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"

	"github.com/nharju/sensorpush-logger/internal/poller"
)

// Scanner discovers peripherals over BLE. The default device must be set by
// the caller (ble.SetDefaultDevice) before scanning.
type Scanner struct {
	ScanDuration time.Duration
	Logger       *slog.Logger
}

// Scan collects advertisements for the configured duration and returns one
// Device per connectable advertisement that carries a name.
func (s *Scanner) Scan(ctx context.Context) ([]poller.Device, error) {
	scanCtx := ble.WithSigHandler(context.WithTimeout(ctx, s.ScanDuration))
	ads, err := ble.Find(scanCtx, false, nil)
	if err != nil {
		switch errors.Cause(err) {
		case nil:
		case context.DeadlineExceeded:
		case context.Canceled:
			return nil, errors.Wrap(err, "scan for devices cancelled")
		default:
			return nil, errors.Wrap(err, "failed to scan for devices")
		}
	}

	var devices []poller.Device
	seen := make(map[string]bool)
	for _, a := range ads {
		addr := a.Addr().String()
		if a.LocalName() == "" || !a.Connectable() || seen[addr] {
			continue
		}
		seen[addr] = true
		devices = append(devices, &device{
			name:         a.LocalName(),
			addr:         addr,
			scanDuration: s.ScanDuration,
			logger:       s.Logger,
		})
	}
	return devices, nil
}

type device struct {
	name         string
	addr         string
	scanDuration time.Duration
	logger       *slog.Logger
}

func (d *device) Name() string {
	return d.name
}

// Connect establishes a connection to the advertised address. The returned
// Conn's Close cancels the connection and waits for the disconnect event.
func (d *device) Connect(ctx context.Context) (poller.Conn, error) {
	filter := func(a ble.Advertisement) bool {
		return strings.EqualFold(a.Addr().String(), d.addr)
	}
	connectCtx := ble.WithSigHandler(context.WithTimeout(ctx, d.scanDuration))
	cln, err := ble.Connect(connectCtx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't connect to ble")
	}

	// The peripheral can drop the connection asynchronously; watch for the
	// disconnect event so Close can wait for it.
	done := make(chan struct{})
	go func() {
		<-cln.Disconnected()
		close(done)
	}()

	profile, err := cln.DiscoverProfile(true)
	if err != nil {
		_ = cln.CancelConnection()
		<-done
		return nil, errors.Wrap(err, "couldn't discover profile")
	}
	return &conn{cln: cln, profile: profile, done: done, logger: d.logger}, nil
}

type conn struct {
	cln     ble.Client
	profile *ble.Profile
	done    chan struct{}
	logger  *slog.Logger
}

func (c *conn) WriteAttribute(char string, payload []byte) error {
	ch, err := c.find(char)
	if err != nil {
		return err
	}
	return errors.Wrapf(c.cln.WriteCharacteristic(ch, payload, false), "failed to write characteristic %s", char)
}

func (c *conn) ReadAttribute(char string) ([]byte, error) {
	ch, err := c.find(char)
	if err != nil {
		return nil, err
	}
	payload, err := c.cln.ReadCharacteristic(ch)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read characteristic %s", char)
	}
	return payload, nil
}

func (c *conn) Close() error {
	if c.logger != nil {
		c.logger.Debug("Closing connection")
	}
	err := c.cln.CancelConnection()
	<-c.done
	return err
}

func (c *conn) find(char string) (*ble.Characteristic, error) {
	uuid, err := ble.Parse(char)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse characteristic uuid %s", char)
	}
	found := c.profile.Find(ble.NewCharacteristic(uuid))
	if found == nil {
		return nil, errors.Errorf("characteristic %s not found on device", char)
	}
	ch, ok := found.(*ble.Characteristic)
	if !ok {
		return nil, errors.Errorf("attribute %s is not a characteristic", char)
	}
	return ch, nil
}
