package serial

import (
	"errors"
	"fmt"
	"sync"

	bugst "go.bug.st/serial"
)

// portablePort adapts a go.bug.st/serial port. The library cannot report the
// size of the OS input queue, so InputWaiting performs one timed read into a
// staging buffer and reports its length; Read then drains that buffer.
type portablePort struct {
	port   bugst.Port
	device string

	mu      sync.Mutex // guards pending and scratch
	pending []byte
	scratch []byte

	closeOnce sync.Once
	closeErr  error
}

func openPortable(cfg Config) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	port, err := bugst.Open(cfg.Device, mode)
	if err != nil {
		return nil, classifyPortableOpenError(cfg.Device, err)
	}
	return newPortablePort(port, cfg)
}

// newPortablePort finishes configuration of an already opened port. The port
// is closed if any step fails.
func newPortablePort(port bugst.Port, cfg Config) (Port, error) {
	fail := func(kind error, step string, err error) (Port, error) {
		port.Close()
		return nil, fmt.Errorf("%w: %s: %s: %w", kind, cfg.Device, step, err)
	}

	if _, err := port.GetModemStatusBits(); err != nil {
		return fail(ErrStateQuery, "modem status", err)
	}
	if err := port.SetDTR(true); err != nil {
		return fail(ErrStateApply, "assert DTR", err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		return fail(ErrTimeoutConfig, "read timeout", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return fail(ErrStateApply, "purge input", err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		return fail(ErrStateApply, "purge output", err)
	}

	return &portablePort{
		port:    port,
		device:  cfg.Device,
		scratch: make([]byte, 4096),
	}, nil
}

// classifyPortableOpenError maps go.bug.st open errors onto our error kinds:
// a rejected mode is a line state problem, anything else a failed open.
func classifyPortableOpenError(device string, err error) error {
	var perr *bugst.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case bugst.InvalidSpeed, bugst.InvalidDataBits, bugst.InvalidParity, bugst.InvalidStopBits:
			return fmt.Errorf("%w: %s: %w", ErrStateApply, device, err)
		case bugst.InvalidTimeoutValue:
			return fmt.Errorf("%w: %s: %w", ErrTimeoutConfig, device, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrOpenFailed, device, err)
}

func (p *portablePort) InputWaiting() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) > 0 {
		return len(p.pending), nil
	}
	n, err := p.port.Read(p.scratch)
	if err != nil {
		return 0, err
	}
	p.pending = append(p.pending[:0], p.scratch[:n]...)
	return n, nil
}

func (p *portablePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return p.port.Read(buf)
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[:copy(p.pending, p.pending[n:])]
	return n, nil
}

func (p *portablePort) Write(buf []byte) (int, error) {
	return p.port.Write(buf)
}

func (p *portablePort) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.port.Close()
	})
	return p.closeErr
}

// ListPorts returns the serial ports known to the OS.
func ListPorts() ([]string, error) {
	return bugst.GetPortsList()
}
