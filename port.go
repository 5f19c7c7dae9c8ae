package serial

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// DefaultBaudRate is used when Config.BaudRate is zero.
	DefaultBaudRate = 19200
	// DefaultReadTimeout bounds a single read on the port.
	DefaultReadTimeout = 10 * time.Millisecond

	// idleInterval is how long the reader waits when no bytes are pending.
	idleInterval = 10 * time.Millisecond
)

// Port is an open serial endpoint. Write may be called concurrently with
// InputWaiting and Read; InputWaiting and Read are only called by the reader
// goroutine.
type Port interface {
	io.ReadWriteCloser
	// InputWaiting reports how many received bytes are buffered by the OS.
	// It returns io.EOF once the device has hung up.
	InputWaiting() (int, error)
}

// Driver selects the port implementation.
type Driver string

const (
	// DriverAuto uses the native driver where available, portable otherwise.
	DriverAuto Driver = ""
	// DriverNative talks termios directly (Linux only).
	DriverNative Driver = "native"
	// DriverPortable uses go.bug.st/serial.
	DriverPortable Driver = "portable"
)

// ParseDriver maps a configuration string to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DriverAuto, nil
	case "native":
		return DriverNative, nil
	case "portable":
		return DriverPortable, nil
	default:
		return DriverAuto, fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

// Config holds configuration parameters for opening a serial port.
// The line is always configured 8N1 with DTR asserted.
type Config struct {
	Device      string
	BaudRate    int           // default 19200
	ReadTimeout time.Duration // default 10ms
	Driver      Driver

	// OnStop, if set, is called once from the reader goroutine as it exits,
	// with the error that stopped it (nil after Close). Done is closed and
	// Close returns only after OnStop has returned, so OnStop must not call
	// Close.
	OnStop func(err error)
}

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// OpenPort opens and configures the device named in cfg: 8 data bits, no
// parity, one stop bit, DTR on, a short read timeout, and both OS buffers
// purged. The returned Port is fully configured; on failure nothing is left
// open.
func OpenPort(cfg Config) (Port, error) {
	cfg = cfg.withDefaults()
	switch cfg.Driver {
	case DriverNative:
		return openNative(cfg)
	case DriverPortable:
		return openPortable(cfg)
	case DriverAuto:
		if nativeSupported {
			return openNative(cfg)
		}
		return openPortable(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, cfg.Driver)
	}
}
