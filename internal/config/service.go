// Package config loads the logger configuration from a TOML file, creating
// the file with defaults on first run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	serial "github.com/luhtfiimanal/go-serial-logger"
	"github.com/luhtfiimanal/go-serial-logger/internal/monitoring"
	"github.com/luhtfiimanal/go-serial-logger/internal/record"
)

// DefaultFileName is used when no config path is given.
const DefaultFileName = "seriallogger.toml"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Baudrate:         serial.DefaultBaudRate,
			Driver:           "auto",
			ReadTimeoutMS:    int(serial.DefaultReadTimeout.Milliseconds()),
			RescanIntervalMS: 1000,
		},
		Handshake: HandshakeConfig{
			Command:      "help\n",
			ExpectPrefix: "!1$",
			Attempts:     5,
			IntervalMS:   100,
		},
		Output: OutputConfig{
			Dir:          ".",
			RecordPrefix: record.DefaultPrefix,
			ShowWrites:   true,
		},
	}
}

// Load reads the configuration at path. If the file does not exist it is
// created with the defaults, which are returned.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		monitoring.Logf("wrote default configuration to %s", path)
		return cfg, nil
	}

	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		monitoring.Logf("config %s: unknown key %q ignored", path, key.String())
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Normalize validates the configuration and applies defaults for any unset
// values.
func (c *Config) Normalize() error {
	def := Default()

	if c.Serial.Baudrate <= 0 {
		c.Serial.Baudrate = def.Serial.Baudrate
	}
	if _, err := serial.ParseDriver(c.Serial.Driver); err != nil {
		return fmt.Errorf("serial.driver: %w", err)
	}
	if c.Serial.ReadTimeoutMS <= 0 {
		c.Serial.ReadTimeoutMS = def.Serial.ReadTimeoutMS
	}
	if c.Serial.RescanIntervalMS <= 0 {
		c.Serial.RescanIntervalMS = def.Serial.RescanIntervalMS
	}

	if c.Handshake.ExpectPrefix == "" {
		return errors.New("handshake.expect_prefix must not be empty")
	}
	if c.Handshake.Attempts <= 0 {
		c.Handshake.Attempts = def.Handshake.Attempts
	}
	if c.Handshake.IntervalMS <= 0 {
		c.Handshake.IntervalMS = def.Handshake.IntervalMS
	}

	if c.Output.Dir == "" {
		c.Output.Dir = def.Output.Dir
	}
	if c.Output.RecordPrefix == "" {
		c.Output.RecordPrefix = def.Output.RecordPrefix
	}
	return nil
}

// Driver returns the parsed serial driver. Normalize has validated it.
func (c *Config) Driver() serial.Driver {
	d, _ := serial.ParseDriver(c.Serial.Driver)
	return d
}
