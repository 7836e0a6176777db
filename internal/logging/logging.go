package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var envLevels = map[string]zerolog.Level{
	"development": zerolog.DebugLevel,
	"staging":     zerolog.InfoLevel,
	"production":  zerolog.InfoLevel,
}

// Config selects output format and level.
type Config struct {
	// AppEnv is development, staging or production. Production logs JSON lines.
	AppEnv string
	// Level overrides the AppEnv default (debug, info, warn, error).
	Level string
	Out   io.Writer
}

// ConfigFromEnv reads APP_ENV and LOG_LEVEL.
func ConfigFromEnv() Config {
	return Config{
		AppEnv: strings.TrimSpace(os.Getenv("APP_ENV")),
		Level:  strings.TrimSpace(os.Getenv("LOG_LEVEL")),
	}
}

// New creates a logger for a component using APP_ENV and LOG_LEVEL.
func New(component string) zerolog.Logger {
	return NewWithConfig(component, ConfigFromEnv())
}

// NewWithConfig creates a logger for a component.
func NewWithConfig(component string, cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	level := ParseLevel(cfg.Level, cfg.AppEnv)
	if cfg.AppEnv == "production" {
		return zerolog.New(out).Level(level).With().Timestamp().Str("component", component).Logger()
	}

	cw := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    cfg.Out != nil,
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %v", component, i)
		},
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// ParseLevel resolves an explicit level name, falling back to the AppEnv default.
func ParseLevel(name, appEnv string) zerolog.Level {
	if name != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(name)); err == nil && lvl != zerolog.NoLevel {
			return lvl
		}
	}
	if lvl, ok := envLevels[appEnv]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}
