//go:build linux

package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const nativeSupported = true

// nativePort is a raw termios serial port.
type nativePort struct {
	fd        int
	device    string
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func openNative(cfg Config) (Port, error) {
	// O_NONBLOCK so a missing carrier cannot hang the open itself.
	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, cfg.Device, err)
	}

	p := &nativePort{fd: fd, device: cfg.Device}
	if err := p.configure(cfg); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return p, nil
}

func (p *nativePort) configure(cfg Config) error {
	termios, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStateQuery, p.device, err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	// 8N1, receiver on, ignore modem control lines for open/read
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	baud, err := baudToUnix(cfg.BaudRate)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStateApply, p.device, err)
	}
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStateApply, p.device, err)
	}

	// Pseudo-terminals have no modem lines and reject TIOCMBIS.
	if err := unix.IoctlSetPointerInt(p.fd, unix.TIOCMBIS, unix.TIOCM_DTR); err != nil &&
		!errors.Is(err, unix.ENOTTY) && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("%w: %s: assert DTR: %w", ErrStateApply, p.device, err)
	}

	if err := p.setReadTimeout(cfg.ReadTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTimeoutConfig, p.device, err)
	}

	if err := unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		return fmt.Errorf("%w: %s: purge: %w", ErrStateApply, p.device, err)
	}
	return nil
}

// setReadTimeout sets VMIN=0 and VTIME to the timeout rounded up to whole
// deciseconds, then turns the descriptor back into blocking mode so reads
// are bounded by VTIME alone.
func (p *nativePort) setReadTimeout(d time.Duration) error {
	termios, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return err
	}
	deci := (d + 100*time.Millisecond - 1) / (100 * time.Millisecond)
	if deci < 1 {
		deci = 1
	}
	if deci > 255 {
		deci = 255
	}
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = uint8(deci)
	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, termios); err != nil {
		return err
	}
	return unix.SetNonblock(p.fd, false)
}

func (p *nativePort) InputWaiting() (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	n, err := unix.IoctlGetInt(p.fd, unix.TIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("query input queue: %w", err)
	}
	if n > 0 {
		return n, nil
	}

	// Nothing queued: a zero-timeout poll tells an idle line from a hang-up.
	pfd := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(pfd, 0); err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}
	if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return 0, io.EOF
	}
	return 0, nil
}

func (p *nativePort) Read(buf []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(p.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (p *nativePort) Write(buf []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Write(p.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Close releases the descriptor. Safe to call multiple times; subsequent
// calls are no-ops.
func (p *nativePort) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeErr = unix.Close(p.fd)
	})
	return p.closeErr
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, fmt.Errorf("unsupported baud rate %d", baud)
	}
}
