/*
Package logx provides a structured logging wrapper based on zerolog.

It initializes the global logger, picks the output format (console or JSON)
from the environment, derives per-component and per-user child loggers, and
offers key/value helpers for the Info, Warn, Error and Fatal levels. Account
emails never reach the log unmasked.
*/
package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger initializes the global zerolog instance.
// Development writes a human-readable console format to stderr at debug
// level, other environments write JSON to stdout at info level. A level that
// parses as a zerolog level overrides the default.
func InitGlobalLogger(isDevelopment bool, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = os.Stdout
	lvl := zerolog.InfoLevel
	if isDevelopment {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil && level != "" {
		lvl = parsed
	}

	log.Logger = zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger()
}

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child of the global logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// ForUser returns a component logger bound to one signed-in user.
func ForUser(component, userID string) zerolog.Logger {
	return Logger().With().Str("component", component).Str("user_id", userID).Logger()
}

// MaskEmail keeps the first character of the local part and the domain, so
// "alice@example.com" logs as "a***@example.com".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// checkFields validates that the variadic fields parameter has an even number (key-value pairs).
// If the count is odd, it logs a warning and returns nil to prevent zerolog from panicking.
func checkFields(level string, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_level", level).
			Msgf("Logx call (%s) received odd number of fields: %v. Fields ignored.", level, fields)
		return nil
	}
	return fields
}

// emit writes ev with fields, skipping the exported helper's stack frame.
func emit(ev *zerolog.Event, level string, err error, msg string, fields []any) {
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Fields(checkFields(level, fields)).
		CallerSkipFrame(2).
		Msg(msg)
}

// Info records msg at the Info level with optional key/value fields.
func Info(msg string, fields ...any) {
	emit(Logger().Info(), "Info", nil, msg, fields)
}

// Warn records msg at the Warn level with optional key/value fields.
func Warn(msg string, fields ...any) {
	emit(Logger().Warn(), "Warn", nil, msg, fields)
}

// Error records err and msg at the Error level with optional key/value fields.
func Error(err error, msg string, fields ...any) {
	emit(Logger().Error(), "Error", err, msg, fields)
}

// Fatal records err and msg at the Fatal level, then exits the process.
func Fatal(err error, msg string, fields ...any) {
	emit(Logger().Fatal(), "Fatal", err, msg, fields)
}
