// Package config loads the daemon configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/reedgrid/internal/serialmux"
)

// DefaultConfigPath is where Resolve looks for a configuration file when no
// path is given. It is relative to the working directory.
const DefaultConfigPath = "config/reedgrid.defaults.json"

const (
	defaultPort        = "/dev/ttyACM0"
	defaultReadTimeout = 5 * time.Second
	defaultDBPath      = "reedgrid.db"
	defaultListen      = ":8080"
	defaultReplayEvery = 50 * time.Millisecond
)

// Config is the root configuration. Fields omitted from the JSON file are
// nil and the Get* methods return their defaults, so partial files are safe.
type Config struct {
	Port        *string                `json:"port,omitempty"`
	Serial      *serialmux.PortOptions `json:"serial,omitempty"`
	ReadTimeout *string                `json:"read_timeout,omitempty"` // duration string like "5s"; "0s" disables
	DBPath      *string                `json:"db_path,omitempty"`
	Listen      *string                `json:"listen,omitempty"`
	Fixture     *string                `json:"fixture,omitempty"`
	ReplayEvery *string                `json:"replay_every,omitempty"` // fixture line interval in dev mode
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 64 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Resolve loads path, or DefaultConfigPath when path is empty. A missing
// default file yields an empty Config; a missing explicit path is an error.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultConfigPath); errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	return Load(DefaultConfigPath)
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Port != nil && *c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if err := validateDuration("read_timeout", c.ReadTimeout, false); err != nil {
		return err
	}
	if err := validateDuration("replay_every", c.ReplayEvery, true); err != nil {
		return err
	}
	return nil
}

// validateDuration checks an optional duration string. Zero is rejected when
// positive is set.
func validateDuration(name string, v *string, positive bool) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", name, d)
	}
	if positive && d == 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// GetPort returns the serial device path or the default.
func (c *Config) GetPort() string {
	if c.Port == nil {
		return defaultPort
	}
	return *c.Port
}

// GetSerial returns the normalised port options. Invalid options fall back
// to the defaults; Load has already rejected them.
func (c *Config) GetSerial() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	n, err := opts.Normalise()
	if err != nil {
		n, _ = serialmux.PortOptions{}.Normalise()
	}
	return n
}

// GetReadTimeout returns the per-line read timeout. Zero disables it.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, defaultReadTimeout)
}

// GetReplayEvery returns the fixture replay interval.
func (c *Config) GetReplayEvery() time.Duration {
	d := parseDuration(c.ReplayEvery, defaultReplayEvery)
	if d <= 0 {
		return defaultReplayEvery
	}
	return d
}

// GetDBPath returns the SQLite database path or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return defaultDBPath
	}
	return *c.DBPath
}

// GetListen returns the HTTP listen address or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return defaultListen
	}
	return *c.Listen
}

// GetFixture returns the dev-mode fixture path, or "" when unset.
func (c *Config) GetFixture() string {
	if c.Fixture == nil {
		return ""
	}
	return *c.Fixture
}

func parseDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}
