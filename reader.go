package serial

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luhtfiimanal/go-serial-logger/internal/monitoring"
)

// SerialReader owns an open Port and a goroutine that frames its input into
// lines. Lines go to the callback set with SetCallback, or to a queue drained
// with PopLine when no callback is set.
//
// All methods are safe for concurrent use, except that Close must not be
// called from inside the line callback.
type SerialReader struct {
	port   Port
	config Config

	framer     LineFramer // reader goroutine only
	dispatcher Dispatcher

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	errMu sync.Mutex
	err   error

	writeMu sync.Mutex
	closed  bool // guarded by writeMu

	closeOnce sync.Once
	closeErr  error
}

// Open opens the port described by cfg and starts reading from it. If opening
// or configuring the port fails no goroutine is started; the error wraps one
// of ErrOpenFailed, ErrStateQuery, ErrStateApply or ErrTimeoutConfig.
func Open(cfg Config) (*SerialReader, error) {
	cfg = cfg.withDefaults()
	port, err := OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("serial: opened %s at %d baud", cfg.Device, cfg.BaudRate)
	return New(port, cfg), nil
}

// New starts a reader on an already configured port. The reader takes
// ownership of port and closes it in Close.
func New(port Port, cfg Config) *SerialReader {
	s := &SerialReader{
		port:   port,
		config: cfg.withDefaults(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.running.Store(true)
	go s.run()
	return s
}

// Device returns the device name the reader was opened with.
func (s *SerialReader) Device() string {
	return s.config.Device
}

func (s *SerialReader) run() {
	err := s.readLoop()
	s.running.Store(false)
	if err != nil {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		monitoring.Logf("serial: reader for %s stopped: %v", s.config.Device, err)
	}
	if s.config.OnStop != nil {
		s.config.OnStop(err)
	}
	close(s.done)
}

// readLoop polls the port until Close is called or an I/O error occurs.
// Every complete line in the buffer is dispatched after each read.
func (s *SerialReader) readLoop() error {
	idle := time.NewTimer(idleInterval)
	defer idle.Stop()

	var buf []byte
	for s.running.Load() {
		n, err := s.port.InputWaiting()
		if err != nil {
			return err
		}
		if n == 0 {
			idle.Reset(idleInterval)
			select {
			case <-s.stop:
				return nil
			case <-idle.C:
			}
			continue
		}

		if cap(buf) < n {
			buf = make([]byte, n)
		}
		got, err := s.port.Read(buf[:n])
		if err != nil {
			return err
		}
		s.framer.Append(buf[:got])

		for {
			line, ok := s.framer.ExtractLine()
			if !ok {
				break
			}
			s.dispatcher.Dispatch(line)
		}
	}
	return nil
}

// Write sends p to the device, looping until every byte has been accepted.
// Nothing is appended to p. If a write call fails the returned count tells
// how much was already sent; the error wraps ErrWriteFailed.
func (s *SerialReader) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	total := 0
	for total < len(p) {
		n, err := s.port.Write(p[total:])
		if err != nil {
			return total, fmt.Errorf("%w: %s: %w", ErrWriteFailed, s.config.Device, err)
		}
		if n <= 0 {
			return total, fmt.Errorf("%w: %s: no progress after %d of %d bytes", ErrWriteFailed, s.config.Device, total, len(p))
		}
		total += n
	}
	return total, nil
}

// WriteString is Write for strings.
func (s *SerialReader) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// SetCallback routes every line framed from now on to fn, or back to the
// queue when fn is nil. Queued lines are not replayed to fn. fn runs on the
// reader goroutine while a lock is held; it must not call SetCallback or Close.
func (s *SerialReader) SetCallback(fn func(line string)) {
	s.dispatcher.SetCallback(fn)
}

// HasLine reports whether a queued line is waiting.
func (s *SerialReader) HasLine() bool {
	return s.dispatcher.HasPending()
}

// PopLine returns the oldest queued line without blocking.
func (s *SerialReader) PopLine() (string, bool) {
	return s.dispatcher.Pop()
}

// Valid reports whether the port is open and the reader is still running.
// Once false it stays false; Err tells why.
func (s *SerialReader) Valid() bool {
	return s.running.Load()
}

// Done is closed when the reader goroutine has exited, after Config.OnStop
// has returned.
func (s *SerialReader) Done() <-chan struct{} {
	return s.done
}

// Err returns the I/O error that stopped the reader, or nil if it is still
// running or was stopped by Close.
func (s *SerialReader) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close stops the reader goroutine, waits for it to exit and then closes the
// port, so no read or write reaches a closing port. Config.OnStop has
// returned by the time Close does. Safe to call multiple times; subsequent
// calls are no-ops.
func (s *SerialReader) Close() error {
	s.closeOnce.Do(func() {
		s.running.Store(false)
		close(s.stop)
		<-s.done

		s.writeMu.Lock()
		s.closed = true
		s.closeErr = s.port.Close()
		s.writeMu.Unlock()

		monitoring.Logf("serial: closed %s", s.config.Device)
	})
	return s.closeErr
}
