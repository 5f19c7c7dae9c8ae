package config

import "time"

// Config is the logger's configuration file.
type Config struct {
	Serial    SerialConfig    `toml:"serial"`
	Handshake HandshakeConfig `toml:"handshake"`
	Output    OutputConfig    `toml:"output"`
	Store     StoreConfig     `toml:"store"`
	Debug     DebugConfig     `toml:"debug"`
}

type SerialConfig struct {
	// Ports to try in order. Empty means every port the OS reports.
	Ports            []string `toml:"ports"`
	Baudrate         int      `toml:"baudrate"`
	Driver           string   `toml:"driver"` // auto, native or portable
	ReadTimeoutMS    int      `toml:"read_timeout_ms"`
	RescanIntervalMS int      `toml:"rescan_interval_ms"`
}

// HandshakeConfig describes how the right device is recognised: after
// Command is written, some line must start with ExpectPrefix within
// Attempts * IntervalMS.
type HandshakeConfig struct {
	Command      string `toml:"command"`
	ExpectPrefix string `toml:"expect_prefix"`
	Attempts     int    `toml:"attempts"`
	IntervalMS   int    `toml:"interval_ms"`
}

type OutputConfig struct {
	Dir          string `toml:"dir"`
	RecordPrefix string `toml:"record_prefix"`
	ShowWrites   bool   `toml:"show_writes"`
}

type StoreConfig struct {
	// SQLitePath enables the SQLite mirror of every record when set.
	SQLitePath string `toml:"sqlite_path"`
}

type DebugConfig struct {
	// Listen enables the debug HTTP server when set, e.g. "localhost:8080".
	Listen string `toml:"listen"`
}

func (s SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s SerialConfig) RescanInterval() time.Duration {
	return time.Duration(s.RescanIntervalMS) * time.Millisecond
}

func (h HandshakeConfig) Interval() time.Duration {
	return time.Duration(h.IntervalMS) * time.Millisecond
}
