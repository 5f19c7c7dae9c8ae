// Package scanner finds the logging device among the serial ports of the
// machine. Each candidate is opened, sent a handshake command and kept only
// if it answers with the expected prefix.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	serial "github.com/luhtfiimanal/go-serial-logger"
	"github.com/luhtfiimanal/go-serial-logger/internal/config"
	"github.com/luhtfiimanal/go-serial-logger/internal/monitoring"
)

// ErrNotFound is returned by ScanOnce when no candidate answered the
// handshake.
var ErrNotFound = errors.New("no device answered the handshake")

// Options configure a Scanner. Zero Open and List use serial.Open and
// serial.ListPorts.
type Options struct {
	Ports       []string
	BaudRate    int
	Driver      serial.Driver
	ReadTimeout time.Duration

	Command      string
	ExpectPrefix string
	Attempts     int
	Interval     time.Duration

	RescanInterval time.Duration

	Open func(serial.Config) (*serial.SerialReader, error)
	List func() ([]string, error)
}

// OptionsFromConfig builds scanner options from a normalized configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Ports:          cfg.Serial.Ports,
		BaudRate:       cfg.Serial.Baudrate,
		Driver:         cfg.Driver(),
		ReadTimeout:    cfg.Serial.ReadTimeout(),
		Command:        cfg.Handshake.Command,
		ExpectPrefix:   cfg.Handshake.ExpectPrefix,
		Attempts:       cfg.Handshake.Attempts,
		Interval:       cfg.Handshake.Interval(),
		RescanInterval: cfg.Serial.RescanInterval(),
	}
}

// Scanner probes serial ports for the logging device.
type Scanner struct {
	opts Options
}

// New returns a Scanner. Zero handshake and rescan settings fall back to 5
// attempts 100ms apart and a one second rescan interval.
func New(opts Options) *Scanner {
	if opts.Open == nil {
		opts.Open = serial.Open
	}
	if opts.List == nil {
		opts.List = serial.ListPorts
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = time.Second
	}
	return &Scanner{opts: opts}
}

// Candidates returns the ports to probe: the configured list, or every port
// the OS reports.
func (s *Scanner) Candidates() ([]string, error) {
	if len(s.opts.Ports) > 0 {
		return s.opts.Ports, nil
	}
	ports, err := s.opts.List()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Find scans until a device answers or ctx is done. Between unsuccessful
// scans it waits RescanInterval.
func (s *Scanner) Find(ctx context.Context) (*serial.SerialReader, error) {
	monitoring.Logf("Beginning scan...")
	for {
		r, err := s.ScanOnce(ctx)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			monitoring.Logf("scanner: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.RescanInterval):
		}
	}
}

// ScanOnce probes every candidate once and returns the first reader whose
// device answered the handshake. The returned reader queues lines until a
// new callback is set.
func (s *Scanner) ScanOnce(ctx context.Context) (*serial.SerialReader, error) {
	ports, err := s.Candidates()
	if err != nil {
		return nil, err
	}
	for _, device := range ports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := s.Probe(ctx, device)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, serial.ErrOpenFailed) {
				monitoring.Logf("Error on port %s: %v", device, err)
			}
			continue
		}
		if r != nil {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Probe opens device and runs the handshake. It returns a nil reader and nil
// error when the device did not answer as expected.
func (s *Scanner) Probe(ctx context.Context, device string) (*serial.SerialReader, error) {
	r, err := s.opts.Open(serial.Config{
		Device:      device,
		BaudRate:    s.opts.BaudRate,
		ReadTimeout: s.opts.ReadTimeout,
		Driver:      s.opts.Driver,
	})
	if err != nil {
		return nil, err
	}

	var matched atomic.Bool
	prefix := s.opts.ExpectPrefix
	r.SetCallback(func(line string) {
		if len(line) > len(prefix) && strings.HasPrefix(line, prefix) {
			matched.Store(true)
		}
	})

	if _, err := r.WriteString(s.opts.Command); err != nil {
		r.Close()
		return nil, err
	}

	if !s.awaitHandshake(ctx, r, &matched) {
		r.Close()
		return nil, ctx.Err()
	}
	r.SetCallback(nil)
	return r, nil
}

func (s *Scanner) awaitHandshake(ctx context.Context, r *serial.SerialReader, matched *atomic.Bool) bool {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for i := 0; i < s.opts.Attempts && !matched.Load(); i++ {
		select {
		case <-ctx.Done():
			return false
		case <-r.Done():
			return false
		case <-ticker.C:
		}
	}
	return matched.Load()
}
