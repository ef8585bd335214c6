package main

import (
	"errors"
	"time"

	"github.com/banshee-data/reedgrid/internal/config"
	"github.com/banshee-data/reedgrid/internal/serialmux"
)

// settings is the effective configuration: the config file with any flags
// given on the command line applied on top.
type settings struct {
	Port        string
	Serial      serialmux.PortOptions
	ReadTimeout time.Duration
	DBPath      string
	Listen      string
	Dev         bool
	Fixture     string
	ReplayEvery time.Duration
}

// resolveSettings overrides cfg with the flags named in explicit.
func resolveSettings(cfg *config.Config, explicit map[string]bool) (settings, error) {
	s := settings{
		Port:        cfg.GetPort(),
		Serial:      cfg.GetSerial(),
		ReadTimeout: cfg.GetReadTimeout(),
		DBPath:      cfg.GetDBPath(),
		Listen:      cfg.GetListen(),
		Dev:         *devMode,
		Fixture:     cfg.GetFixture(),
		ReplayEvery: cfg.GetReplayEvery(),
	}

	if explicit["port"] {
		s.Port = *port
	}
	if explicit["baud"] {
		opts := s.Serial
		opts.BaudRate = *baud
		n, err := opts.Normalise()
		if err != nil {
			return settings{}, err
		}
		s.Serial = n
	}
	if explicit["read-timeout"] {
		s.ReadTimeout = *readTimeout
	}
	if explicit["db"] {
		s.DBPath = *dbPath
	}
	if explicit["listen"] {
		s.Listen = *listen
	}
	if explicit["fixture"] {
		s.Fixture = *fixture
	}

	if s.Listen == "" {
		return settings{}, errors.New("listen address is required")
	}
	if !s.Dev && s.Port == "" {
		return settings{}, errors.New("serial port is required")
	}
	if s.ReadTimeout < 0 {
		return settings{}, errors.New("read timeout must be non-negative")
	}
	return s, nil
}
