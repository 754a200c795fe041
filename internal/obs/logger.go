// Package obs provides the pluggable Logger interface used across the
// pipeline, with a logrus-JSON implementation for production and a no-op
// NopLogger for tests.
package obs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logging interface every component depends on.
// Fields are passed as alternating key/value pairs, e.g.
// log.Info("enriched item", "jobId", id, "status", status).
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// LogrusLogger adapts a *logrus.Logger to the Logger interface, JSON
// formatted with caller reporting, grounded on the application-wide logger
// construction in logging.go.
type LogrusLogger struct {
	l *logrus.Logger
}

// NewLogrusLogger builds a LogrusLogger writing JSON lines to os.Stdout at
// the given level ("debug", "info", "warn", "error"); an unrecognized level
// falls back to info.
func NewLogrusLogger(level string) *LogrusLogger {
	l := logrus.New()
	l.SetReportCaller(true)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return filepath.Base(f.Function), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		},
	})
	l.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &LogrusLogger{l: l}
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l *LogrusLogger) Debug(msg string, kv ...any) { l.l.WithFields(fields(kv)).Debug(msg) }
func (l *LogrusLogger) Info(msg string, kv ...any)  { l.l.WithFields(fields(kv)).Info(msg) }
func (l *LogrusLogger) Warn(msg string, kv ...any)  { l.l.WithFields(fields(kv)).Warn(msg) }
func (l *LogrusLogger) Error(msg string, kv ...any) { l.l.WithFields(fields(kv)).Error(msg) }

// NopLogger discards everything; useful as a safe zero-value default.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
