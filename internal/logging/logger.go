package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger with configuration from environment variables.
// ARTFRAME_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
func Init() {
	InitWithWriter(os.Stderr)
}

// InitWithWriter is Init with an explicit console destination.
func InitWithWriter(out io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv("ARTFRAME_LOG_LEVEL")))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
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
