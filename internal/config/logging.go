package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	"asmexplorer/internal/logging"
)

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`   // empty = stderr
}

// Validate checks the level and format names.
func (c LoggingConfig) Validate() error {
	if c.Level != "" {
		if _, err := zapcore.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("invalid logging.level %q", c.Level)
		}
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid logging.format %q (valid: json, console)", c.Format)
	}
	return nil
}

// LoggerConfig returns the settings for logging.Initialize.
func (c LoggingConfig) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, File: c.File}
}
