package logger

import corelogger "github.com/kilianp07/cellsim/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// New returns a Logger for the given component. The output format follows the
// APP_ENV variable and the level defaults to info.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// ForSession returns a child of l whose entries carry the session id. Loggers
// that are not zerolog backed are returned unchanged.
func ForSession(l Logger, id string) Logger {
	zl, ok := l.(*ZerologLogger)
	if !ok || id == "" {
		return l
	}
	return &ZerologLogger{base: zl.base, log: zl.log.With().Str("session", id).Logger()}
}
