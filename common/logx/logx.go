// Package logx configures the process-wide zerolog logger and exposes leveled
// helpers so call-sites never touch zerolog globals directly.
package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment selects the output format.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Options controls Init.
type Options struct {
	Environment Environment
	// Level overrides the environment's default level when non-empty
	// ("debug", "info", "warn", "error").
	Level string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init replaces the global logger. Production writes JSON at info level;
// anything else writes a human-readable console stream at debug level.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.DebugLevel
	var logger zerolog.Logger
	if opts.Environment == Production {
		level = zerolog.InfoLevel
		logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Caller().Logger()
	}

	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}

	log.Logger = logger.Level(level)
}

// Logger returns the global logger, for libraries that accept a
// zerolog.Logger value (mautrix).
func Logger() zerolog.Logger {
	return log.Logger
}

// With returns a child logger carrying the given component name.
func With(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }

func Info() *zerolog.Event { return log.Info() }

func Warn() *zerolog.Event { return log.Warn() }

func Error() *zerolog.Event { return log.Error() }

func Fatal() *zerolog.Event { return log.Fatal() }
