package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds a logger writing to stdout. format is json or console; an
// unknown level falls back to info.
func New(level, format string) zerolog.Logger {
	return newLogger(os.Stdout, level, format)
}

// Init installs New(level, format) as the global logger.
func Init(level, format string) {
	log.Logger = New(level, format)
	zerolog.DefaultContextLogger = &log.Logger
}

func newLogger(w io.Writer, level, format string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(logLevel).With().Timestamp().Logger()
}
