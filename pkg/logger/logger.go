package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the root logger's behavior.
type Config struct {
	Level  string
	Pretty bool
}

// New builds the service's root logger. Unknown levels fall back to info.
func New(config Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(level).With().
		Timestamp().
		Str("service", "ledger-service").
		Logger()
}
