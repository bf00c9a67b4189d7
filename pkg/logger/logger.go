// ClawVault - custodial EVM wallet backend
// Component-tagged logging facade over zerolog.

package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	Setup(os.Getenv("CLAWVAULT_LOG_LEVEL"), os.Getenv("CLAWVAULT_LOG_FORMAT") == "json")
}

// Setup configures the process-wide logger. An empty level means info.
func Setup(level string, jsonOutput bool) {
	lvl := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		lvl = parsed
	}

	if jsonOutput {
		log = zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	} else {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
		log = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	}
}

func emit(ev *zerolog.Event, component, msg string, fields map[string]any) {
	ev = ev.Str("component", component)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// DebugCF logs a debug message for a component with structured fields.
func DebugCF(component, msg string, fields map[string]any) {
	emit(log.Debug(), component, msg, fields)
}

// InfoCF logs an info message for a component with structured fields.
func InfoCF(component, msg string, fields map[string]any) {
	emit(log.Info(), component, msg, fields)
}

// WarnCF logs a warning for a component with structured fields.
func WarnCF(component, msg string, fields map[string]any) {
	emit(log.Warn(), component, msg, fields)
}

// ErrorCF logs an error for a component with structured fields.
func ErrorCF(component, msg string, fields map[string]any) {
	emit(log.Error(), component, msg, fields)
}

// InfoC logs an info message without fields.
func InfoC(component, msg string) { InfoCF(component, msg, nil) }

// WarnC logs a warning without fields.
func WarnC(component, msg string) { WarnCF(component, msg, nil) }

// ErrorC logs an error without fields.
func ErrorC(component, msg string) { ErrorCF(component, msg, nil) }
