package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwa-utils/mwapipe/internal/logging"
)

// ErrInvalidLogFormat is returned when logging.format is not console or json.
var ErrInvalidLogFormat = errors.New("log format must be 'console' or 'json'")

// LoggingConfig is the logging section of the configuration.
type LoggingConfig struct {
	// Level is a zerolog level name (trace, debug, info, warn, error).
	Level string `yaml:"level"          json:"level"`
	// Format is console (human readable) or json.
	Format string `yaml:"format"         json:"format"`
	// File, when set, sends logs to this file instead of stderr.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Validate checks the logging section. Unknown levels are tolerated and
// treated as info by the logging package.
func (lc LoggingConfig) Validate() error {
	switch strings.ToLower(lc.Format) {
	case "", logging.FormatConsole, logging.FormatJSON:
		return nil
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogFormat, lc.Format)
	}
}

// ToLoggingConfig converts the section into a logging.Config. Output is
// "file" when File is set and "stderr" otherwise.
func (lc LoggingConfig) ToLoggingConfig() logging.Config {
	output := logging.OutputStderr
	if lc.File != "" {
		output = logging.OutputFile
	}

	return logging.Config{
		Level:  lc.Level,
		Format: lc.Format,
		Output: output,
		File:   lc.File,
	}
}

// EnsureLogDir creates the directory holding the configured log file.
func (lc LoggingConfig) EnsureLogDir() error {
	if lc.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(lc.File), 0o750); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	return nil
}
