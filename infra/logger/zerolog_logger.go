package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options select the level, format and destination of a ZerologLogger.
// Format is "json" or "console"; empty picks console when APP_ENV=dev.
type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	base zerolog.Logger
	log  zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger using the APP_ENV environment variable
// to determine the output format. All logs include the provided component field.
func NewZerologLogger(component string) Logger {
	l, _ := NewWithOptions(component, Options{})
	return l
}

// NewWithOptions builds a logger from explicit options. An unknown level is
// reported and info is used instead.
func NewWithOptions(component string, o Options) (*ZerologLogger, error) {
	out := o.Out
	if out == nil {
		out = os.Stdout
	}
	format := strings.ToLower(o.Format)
	if format == "" && strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		format = "console"
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var err error
	level := zerolog.InfoLevel
	if o.Level != "" {
		parsed, perr := zerolog.ParseLevel(strings.ToLower(o.Level))
		if perr != nil {
			err = fmt.Errorf("log level %q: %w", o.Level, perr)
		} else {
			level = parsed
		}
	}
	base := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &ZerologLogger{base: base, log: base.With().Str("component", component).Logger()}, err
}

// Component returns a child logger tagged with another component name.
func (l *ZerologLogger) Component(name string) Logger {
	return &ZerologLogger{base: l.base, log: l.base.With().Str("component", name).Logger()}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
