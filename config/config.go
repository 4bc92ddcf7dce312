package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

const DefaultEventBuffer = 100

// Config holds the server's runtime settings.
type Config struct {
	Addr string

	// Logging mirrors logs into LogFile as well as stdout.
	Logging  bool
	LogFile  string
	LogLevel string

	// NATSURL enables mirroring broadcasts to NATS when set.
	NATSURL string

	// MaxSessions caps live games; 0 means unlimited.
	MaxSessions int

	EventBuffer int
}

func Default() Config {
	return Config{
		Addr:        ":8080",
		LogFile:     "myapp.log",
		LogLevel:    "info",
		EventBuffer: DefaultEventBuffer,
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen address is required")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max sessions must not be negative, got %d", c.MaxSessions)
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("event buffer must not be negative, got %d", c.EventBuffer)
	}
	if c.Logging && c.LogFile == "" {
		return errors.New("log file is required when logging is enabled")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
