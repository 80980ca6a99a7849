/*
Package logx wraps zerolog with the process-wide logger used by every Chatterbox component.

The logger is initialised once in main. Long-lived components derive a child logger through
Component, live connections through Session, and request handlers pick up the request-scoped
logger with Ctx. One-off call sites use the Info/Warn/Error/Fatal helpers, which accept an
optional key-value field list.
*/
package logx

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Field names shared by every component so log queries can join on them.
const (
	FieldComponent = "component"
	FieldClientID  = "client_id"
	FieldUserID    = "user_id"
	FieldChatID    = "chat_id"
	FieldEvent     = "event"
)

// InitGlobalLogger configures the global zerolog instance.
// Development mode writes coloured console output to stderr; production writes JSON to stdout.
// level overrides the default level (debug in development, info otherwise) when it parses.
func InitGlobalLogger(isDevelopment bool, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var logger zerolog.Logger
	lvl := zerolog.InfoLevel
	if isDevelopment {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		lvl = zerolog.DebugLevel
	} else {
		logger = zerolog.New(os.Stdout)
	}

	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		}
	}

	log.Logger = logger.Level(lvl).With().Timestamp().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// Logger returns the global logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str(FieldComponent, name).Logger()
}

// Session returns the logger of one live connection.
func Session(clientID, userID string) zerolog.Logger {
	return Logger().With().
		Str(FieldComponent, "ws").
		Str(FieldClientID, clientID).
		Str(FieldUserID, userID).
		Logger()
}

// Ctx returns the logger stored in ctx by RequestLogger, or the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return Logger()
}

// Info logs msg at info level.
func Info(msg string, fields ...any) {
	emit(Logger().Info(), msg, fields)
}

// Warn logs msg at warn level.
func Warn(msg string, fields ...any) {
	emit(Logger().Warn(), msg, fields)
}

// Error logs err and msg at error level.
func Error(err error, msg string, fields ...any) {
	emit(Logger().Error().Err(err), msg, fields)
}

// Fatal logs err and msg, then exits the process with status 1.
func Fatal(err error, msg string, fields ...any) {
	emit(Logger().Fatal().Err(err), msg, fields)
}

// emit writes one event. An odd-length field list is dropped rather than misaligning keys.
func emit(e *zerolog.Event, msg string, fields []any) {
	if len(fields)%2 != 0 {
		e = e.Int("dropped_fields", len(fields))
		fields = nil
	}
	e.Fields(fields).CallerSkipFrame(2).Msg(msg)
}
