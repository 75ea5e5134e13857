// Package logging provides structured logging for the endpoint core using slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
)

var (
	structuredLogger *slog.Logger
	humanLogger      *slog.Logger
	loggerMu         sync.RWMutex
	currentLevel     = new(slog.LevelVar)
	initOnce         sync.Once
	initialized      bool
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// fanout is the structured logger's actual output target: os.Stderr plus
// whatever sinks internal/api has registered for the WebSocket log_entry
// channel (spec §6). Additional sinks can be registered any time, even
// after Init, since every Write call re-reads the current sink list.
type fanout struct {
	mu    sync.RWMutex
	extra []io.Writer
}

func (f *fanout) Write(p []byte) (int, error) {
	n, err := os.Stderr.Write(p)
	f.mu.RLock()
	extra := f.extra
	f.mu.RUnlock()
	for _, w := range extra {
		// Best-effort: a slow or disconnected log_entry subscriber must
		// never block or break process-wide logging.
		_, _ = w.Write(p)
	}
	return n, err
}

func (f *fanout) add(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extra = append(f.extra, w)
}

var structuredSink = &fanout{}

// AddSink registers w to receive a copy of every structured log line
// written from here on, in addition to stderr. Used by internal/api to
// feed the WebSocket log_entry channel (spec §6).
func AddSink(w io.Writer) { structuredSink.add(w) }

// defaultReplaceAttr formats time, renames custom levels, and truncates
// floats to two decimal places so ratio/drift values don't spam full
// float64 precision into every log line.
func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			label, exists := levelNames[level]
			if !exists {
				label = level.String()
			}
			a.Value = slog.StringValue(label)
		}
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncated := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

// Init sets up the global structured (JSON to stderr) and human-readable
// (text to stdout) loggers. Safe to call more than once; only the first
// call takes effect.
func Init() {
	initOnce.Do(func() {
		currentLevel.Set(slog.LevelInfo)

		structuredHandler := slog.NewJSONHandler(structuredSink, &slog.HandlerOptions{
			Level:       currentLevel,
			ReplaceAttr: defaultReplaceAttr,
		})
		humanHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       currentLevel,
			ReplaceAttr: defaultReplaceAttr,
		})

		loggerMu.Lock()
		structuredLogger = slog.New(structuredHandler)
		humanLogger = slog.New(humanHandler)
		loggerMu.Unlock()

		slog.SetDefault(structuredLogger)
		initialized = true
	})
}

// IsInitialized reports whether Init has run.
func IsInitialized() bool { return initialized }

// SetLevel changes the level of all loggers created by this package.
func SetLevel(level slog.Level) { currentLevel.Set(level) }

// Structured returns the global JSON logger, or nil before Init.
func Structured() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return structuredLogger
}

// HumanReadable returns the global text logger, or nil before Init.
func HumanReadable() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return humanLogger
}

// ForService returns a logger scoped to serviceName, falling back to
// slog.Default if Init hasn't run yet (keeps callers crash-free in tests).
func ForService(serviceName string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()
	if logger == nil {
		return slog.Default().With("service", serviceName)
	}
	return logger.With("service", serviceName)
}

// Debug logs via the default logger.
func Debug(msg string, args ...any) { slog.Debug(msg, args...) }

// Info logs via the default logger.
func Info(msg string, args ...any) { slog.Info(msg, args...) }

// Warn logs via the default logger.
func Warn(msg string, args ...any) { slog.Warn(msg, args...) }

// Error logs via the default logger.
func Error(msg string, args ...any) { slog.Error(msg, args...) }

// Fatal logs at the custom FATAL level then exits the process. Reserved
// for startup failures (§6 exit code 1); never call from a running pipeline.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs at the custom TRACE level.
func Trace(msg string, args ...any) { slog.Log(context.TODO(), LevelTrace, msg, args...) }

// fmtErr is a small helper used by callers that want a slog.Attr pairing
// "error" with err.Error() without importing fmt themselves.
func fmtErr(err error) slog.Attr { return slog.String("error", fmt.Sprint(err)) }
