//go:build linux

package serial

import (
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func openPTY(t *testing.T) (master *os.File, r *SerialReader) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	r, err = Open(Config{
		Device:   slave.Name(),
		BaudRate: 115200,
		Driver:   DriverNative,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return master, r
}

func TestNativePort_BasicRead(t *testing.T) {
	master, reader := openPTY(t)

	lines := make(chan string, 4)
	reader.SetCallback(func(line string) { lines <- line })

	_, err := master.Write([]byte("hello\n"))
	require.NoError(t, err)

	select {
	case l := <-lines:
		require.Equal(t, "hello", l)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for line")
	}
}

func TestNativePort_ChatMasterSlave(t *testing.T) {
	master, reader := openPTY(t)

	fromSlave := make(chan string, 1)
	go func() {
		buf := make([]byte, 128)
		n, err := master.Read(buf)
		if err != nil {
			return
		}
		fromSlave <- string(buf[:n])
	}()

	// 1. Master writes, reader queues the line
	_, err := master.Write([]byte("ping\n"))
	require.NoError(t, err)
	require.Eventually(t, reader.HasLine, time.Second, 5*time.Millisecond)
	line, ok := reader.PopLine()
	require.True(t, ok)
	require.Equal(t, "ping", line)

	// 2. Reader writes, master receives it untranslated
	_, err = reader.WriteString("pong\n")
	require.NoError(t, err)

	select {
	case msg := <-fromSlave:
		require.Equal(t, "pong\n", msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for master to receive from slave")
	}
}

func TestNativePort_Killability(t *testing.T) {
	master, reader := openPTY(t)

	_, err := master.Write([]byte("test data\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- reader.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for Close to join the reader")
	}
	require.False(t, reader.Valid())
	require.NoError(t, reader.Err())

	// Should be a no-op
	require.NoError(t, reader.Close())
}

func TestNativePort_HangupStopsReader(t *testing.T) {
	master, reader := openPTY(t)
	require.True(t, reader.Valid())

	// Simulate device disconnect by closing master
	require.NoError(t, master.Close())

	select {
	case <-reader.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for reader to stop after device disconnect")
	}
	require.False(t, reader.Valid())
	require.Error(t, reader.Err())
}

func TestNativePort_OpenMissingDevice(t *testing.T) {
	_, err := Open(Config{Device: "/dev/does-not-exist-serial", Driver: DriverNative})
	require.ErrorIs(t, err, ErrOpenFailed)
}

func TestNativePort_StateQueryOnNonTTY(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "not-a-tty")
	require.NoError(t, err)
	f.Close()

	_, err = Open(Config{Device: f.Name(), Driver: DriverNative})
	require.ErrorIs(t, err, ErrStateQuery)
}

func TestNativePort_UnsupportedBaud(t *testing.T) {
	_, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { slave.Close() })

	_, err = OpenPort(Config{Device: slave.Name(), BaudRate: 12345, Driver: DriverNative})
	require.ErrorIs(t, err, ErrStateApply)
}

func TestNativePort_PurgesStaleInput(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	_, err = master.Write([]byte("stale\n"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	port, err := OpenPort(Config{Device: slave.Name(), Driver: DriverNative})
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })

	n, err := port.InputWaiting()
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = master.Write([]byte("fresh\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, err = port.InputWaiting()
		return err == nil && n == len("fresh\n")
	}, time.Second, 5*time.Millisecond)

	buf := make([]byte, n)
	got, err := port.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "fresh\n", string(buf[:got]))

	require.NoError(t, port.Close())
	require.NoError(t, port.Close())
	_, err = port.InputWaiting()
	require.ErrorIs(t, err, ErrClosed)
}
