package config

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid: %v", err)
	}
	level, err := c.Level()
	if err != nil || level != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %v (%v)", level, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty address", func(c *Config) { c.Addr = "" }, true},
		{"negative sessions", func(c *Config) { c.MaxSessions = -1 }, true},
		{"negative buffer", func(c *Config) { c.EventBuffer = -1 }, true},
		{"logging without file", func(c *Config) { c.Logging = true; c.LogFile = "" }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"debug level", func(c *Config) { c.LogLevel = "debug" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
