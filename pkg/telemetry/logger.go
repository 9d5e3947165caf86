package telemetry

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates the root logger for one invocation from the logging
// configuration. Output resolves to stderr or a file path; stdout belongs to
// the event stream and is rejected.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, error) {
	var out io.Writer
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		return zerolog.Nop(), fmt.Errorf("log output %q is reserved for the event stream", cfg.Output)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
		}
		out = file
	}

	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(parseLogLevel(cfg.Level)).With().Timestamp().Logger(), nil
}

// ComponentLogger returns a child logger tagged with the component name.
func ComponentLogger(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
