// Package logging configures the process-wide zerolog logger from the
// logging section of the configuration.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"custody-platform/config"

	"github.com/rs/zerolog"
)

// New builds the root logger. Component loggers are derived from it with
// With().Str("component", ...).
func New(cfg config.LoggingConfig) zerolog.Logger {
	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			// Fall back to stdout if the log file cannot be opened
			out = os.Stdout
		} else {
			out = file
		}
	}

	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.IncludeFile {
		logger = logger.Caller()
	}

	return logger.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
