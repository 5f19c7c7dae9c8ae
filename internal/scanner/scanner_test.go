package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	serial "github.com/luhtfiimanal/go-serial-logger"
	"github.com/luhtfiimanal/go-serial-logger/internal/config"
)

// devicePort answers every write with reply.
type devicePort struct {
	mu      sync.Mutex
	in      []byte
	reply   string
	written string
	closed  bool
}

func (d *devicePort) InputWaiting() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.in), nil
}

func (d *devicePort) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(p, d.in)
	d.in = d.in[n:]
	return n, nil
}

func (d *devicePort) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written += string(p)
	d.in = append(d.in, d.reply...)
	return len(p), nil
}

func (d *devicePort) push(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.in = append(d.in, s...)
}

func (d *devicePort) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *devicePort) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type bench struct {
	mu      sync.Mutex
	devices map[string]*devicePort
	opened  []string
}

func (b *bench) open(cfg serial.Config) (*serial.SerialReader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, cfg.Device)
	d, ok := b.devices[cfg.Device]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such device", serial.ErrOpenFailed, cfg.Device)
	}
	return serial.New(d, cfg), nil
}

func testOptions(b *bench, ports ...string) Options {
	return Options{
		Ports:          ports,
		Command:        "help\n",
		ExpectPrefix:   "!1$",
		Attempts:       5,
		Interval:       10 * time.Millisecond,
		RescanInterval: 10 * time.Millisecond,
		Open:           b.open,
	}
}

func TestScanOnce_FindsAnsweringDevice(t *testing.T) {
	wrong := &devicePort{reply: "unknown command\n"}
	right := &devicePort{reply: "!1$ commands:\n"}
	b := &bench{devices: map[string]*devicePort{"/dev/ttyS1": wrong, "/dev/ttyUSB0": right}}

	s := New(testOptions(b, "/dev/ttyS0", "/dev/ttyS1", "/dev/ttyUSB0"))
	r, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	require.Equal(t, "/dev/ttyUSB0", r.Device())
	require.Equal(t, []string{"/dev/ttyS0", "/dev/ttyS1", "/dev/ttyUSB0"}, b.opened)
	require.True(t, wrong.isClosed(), "non-matching device must be released")
	require.False(t, right.isClosed())
	require.Equal(t, "help\n", right.written)

	// lines after the handshake are queued for whoever takes over
	right.push("&&&|1|5|I2C|/dht/t,19.6\n")
	require.Eventually(t, r.HasLine, time.Second, 5*time.Millisecond)
	line, _ := r.PopLine()
	require.Equal(t, "&&&|1|5|I2C|/dht/t,19.6", line)
}

func TestScanOnce_PrefixAloneDoesNotMatch(t *testing.T) {
	d := &devicePort{reply: "!1$\n"}
	b := &bench{devices: map[string]*devicePort{"COM3": d}}

	_, err := New(testOptions(b, "COM3")).ScanOnce(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, d.isClosed())
}

func TestCandidates(t *testing.T) {
	s := New(Options{Ports: []string{"a", "b"}})
	ports, err := s.Candidates()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ports)

	s = New(Options{List: func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil }})
	ports, err = s.Candidates()
	require.NoError(t, err)
	require.Equal(t, []string{"/dev/ttyACM0"}, ports)

	boom := errors.New("boom")
	s = New(Options{List: func() ([]string, error) { return nil, boom }})
	_, err = s.Candidates()
	require.ErrorIs(t, err, boom)
}

func TestFind_RescansUntilDeviceAppears(t *testing.T) {
	b := &bench{devices: map[string]*devicePort{}}
	var calls int
	opts := testOptions(b)
	opts.List = func() ([]string, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		calls++
		if calls == 3 {
			b.devices["/dev/ttyUSB0"] = &devicePort{reply: "!1$ ok\n"}
		}
		return []string{"/dev/ttyUSB0"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := New(opts).Find(ctx)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, "/dev/ttyUSB0", r.Device())
	require.GreaterOrEqual(t, calls, 3)
}

func TestFind_StopsWithContext(t *testing.T) {
	b := &bench{devices: map[string]*devicePort{"COM1": {reply: "nope\n"}}}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := New(testOptions(b, "COM1")).Find(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Serial.Ports = []string{"COM4"}
	cfg.Serial.Driver = "portable"

	opts := OptionsFromConfig(cfg)
	require.Equal(t, []string{"COM4"}, opts.Ports)
	require.Equal(t, serial.DriverPortable, opts.Driver)
	require.Equal(t, 19200, opts.BaudRate)
	require.Equal(t, "help\n", opts.Command)
	require.Equal(t, "!1$", opts.ExpectPrefix)
	require.Equal(t, 100*time.Millisecond, opts.Interval)
	require.Equal(t, time.Second, opts.RescanInterval)
}
