// Package config loads runtime settings from NMMIRROR_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "NMMIRROR"

// Settings holds all runtime configuration.
type Settings struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Empty means $XDG_RUNTIME_DIR, falling back to /run or the temp dir.
	SocketDir string `envconfig:"SOCKET_DIR" default:""`

	// Zero disables automatic reconnection while NetworkManager is gone.
	ReconnectInterval time.Duration `envconfig:"RECONNECT_INTERVAL" default:"5s"`
	OperationTimeout  time.Duration `envconfig:"OPERATION_TIMEOUT" default:"30s"`

	EventBuffer int `envconfig:"EVENT_BUFFER" default:"64"`

	// Refresh the mirror when logind reports a resume from suspend.
	ReconnectOnResume bool `envconfig:"RECONNECT_ON_RESUME" default:"true"`
}

func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) Validate() error {
	if s.ReconnectInterval < 0 {
		return fmt.Errorf("reconnect interval must not be negative: %s", s.ReconnectInterval)
	}
	if s.OperationTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive: %s", s.OperationTimeout)
	}
	if s.EventBuffer < 1 {
		return fmt.Errorf("event buffer must be at least 1: %d", s.EventBuffer)
	}
	return nil
}
