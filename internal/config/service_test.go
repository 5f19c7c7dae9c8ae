package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	serial "github.com/luhtfiimanal/go-serial-logger"
)

func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", DefaultFileName)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.FileExists(t, path)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[serial]
ports = ["/dev/ttyACM0", "/dev/ttyUSB1"]
baudrate = 115200
driver = "portable"

[store]
sqlite_path = "records.db"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB1"}, cfg.Serial.Ports)
	require.Equal(t, 115200, cfg.Serial.Baudrate)
	require.Equal(t, serial.DriverPortable, cfg.Driver())
	require.Equal(t, "records.db", cfg.Store.SQLitePath)

	require.Equal(t, "help\n", cfg.Handshake.Command)
	require.Equal(t, "!1$", cfg.Handshake.ExpectPrefix)
	require.Equal(t, 500*time.Millisecond, time.Duration(cfg.Handshake.Attempts)*cfg.Handshake.Interval())
	require.Equal(t, 10*time.Millisecond, cfg.Serial.ReadTimeout())
	require.Equal(t, time.Second, cfg.Serial.RescanInterval())
}

func TestLoad_BadDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("[serial]\ndriver = \"usb\"\n"), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, serial.ErrUnsupported)
}

func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("[serial\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestNormalize_FillsZeroValues(t *testing.T) {
	cfg := &Config{Handshake: HandshakeConfig{ExpectPrefix: "OK"}}
	require.NoError(t, cfg.Normalize())
	require.Equal(t, serial.DefaultBaudRate, cfg.Serial.Baudrate)
	require.Equal(t, 5, cfg.Handshake.Attempts)
	require.Equal(t, ".", cfg.Output.Dir)
	require.Equal(t, "&&&", cfg.Output.RecordPrefix)
	require.Equal(t, serial.DriverAuto, cfg.Driver())

	require.Error(t, (&Config{}).Normalize())
}
