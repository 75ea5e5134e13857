// Package errors provides centralized error handling for the endpoint core,
// with component/category tagging and optional telemetry integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrorCategory groups errors for logging, metrics, and HTTP status mapping.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryState         ErrorCategory = "state"
	CategoryResource      ErrorCategory = "resource"
	CategoryNetwork       ErrorCategory = "network"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConfigIO      ErrorCategory = "config-io"
	CategorySync          ErrorCategory = "clock-sync"
	CategoryResampler     ErrorCategory = "resampler"
	CategoryPlayback      ErrorCategory = "playback"
	CategoryProtocol      ErrorCategory = "protocol"
	CategoryDeviceBackend ErrorCategory = "device-backend"
	CategoryStateMachine  ErrorCategory = "state-machine"
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when the originating component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with component/category metadata and context.
type EnhancedError struct {
	Err       error
	component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
	mu        sync.RWMutex
	reported  bool
}

func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return fmt.Sprintf("[%s/%s]", ee.component, ee.Category)
	}
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Topic satisfies events.Event so a telemetry consumer can subscribe to
// every raised error through the same bus the rest of the system uses.
func (ee *EnhancedError) Topic() string { return "error" }

func (ee *EnhancedError) Is(target error) bool {
	var other *EnhancedError
	if stderrors.As(target, &other) {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// Component returns the component that raised the error.
func (ee *EnhancedError) Component() string {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.component == "" {
		return ComponentUnknown
	}
	return ee.component
}

// MarkReported flags the error as having been sent to telemetry, returning
// true only the first time it's called so callers never double-report.
func (ee *EnhancedError) MarkReported() bool {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	if ee.reported {
		return false
	}
	ee.reported = true
	return true
}

// Builder incrementally constructs an EnhancedError.
type Builder struct {
	err *EnhancedError
}

// New starts a Builder wrapping err (err may be nil for a fresh error).
func New(err error) *Builder {
	return &Builder{
		err: &EnhancedError{
			Err:       err,
			Category:  CategoryGeneric,
			Context:   make(map[string]any),
			Timestamp: time.Now(),
		},
	}
}

// Newf is New(fmt.Errorf(format, args...)).
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

func (b *Builder) Component(name string) *Builder {
	b.err.component = name
	return b
}

func (b *Builder) Category(c ErrorCategory) *Builder {
	b.err.Category = c
	return b
}

func (b *Builder) Context(key string, value any) *Builder {
	b.err.Context[key] = value
	return b
}

// Build finalizes and returns the EnhancedError, auto-detecting the calling
// component from the call stack if Component() was never set.
func (b *Builder) Build() *EnhancedError {
	if b.err.component == "" {
		b.err.component = detectComponent()
	}
	if publisher != nil {
		publisher.TryPublish(b.err)
	}
	return b.err
}

// EventPublisher lets internal/events subscribe to raised errors without
// this package importing internal/events (avoids an import cycle).
type EventPublisher interface {
	TryPublish(event any) bool
}

var publisher EventPublisher

// SetEventPublisher installs the process-wide error event publisher.
func SetEventPublisher(p EventPublisher) { publisher = p }

// detectComponent inspects the call stack for the first frame outside this
// package, and returns the package name from the last segment of its
// function path as the component name (e.g. "internal/resampler" ->
// "resampler").
func detectComponent() string {
	var pcs [16]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "internal/errors") {
			parts := strings.Split(frame.Function, "/")
			if len(parts) > 0 {
				last := parts[len(parts)-1]
				if idx := strings.Index(last, "."); idx >= 0 {
					return last[:idx]
				}
				return last
			}
		}
		if !more {
			break
		}
	}
	return ComponentUnknown
}

// Is is a passthrough to the standard library for convenience.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is a passthrough to the standard library for convenience.
func As(err error, target any) bool { return stderrors.As(err, target) }
