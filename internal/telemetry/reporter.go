// Package telemetry optionally reports programmer-error events to Sentry,
// mirroring the teacher's opt-in crash reporting (disabled unless
// Settings.Telemetry.Enabled is set, since this endpoint daemon runs on
// hardware its operators may not want phoning home by default).
package telemetry

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/errors"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/logging"
)

// Reporter subscribes to the event bus and forwards every
// *errors.EnhancedError it sees to Sentry, at most once per error
// (EnhancedError.MarkReported guards against a retried operation
// reporting the same failure twice).
type Reporter struct {
	enabled bool
	log     *slog.Logger
}

// NewReporter initializes Sentry when settings.Telemetry.Enabled is set and
// a DSN is configured; otherwise it returns a disabled Reporter whose
// ProcessEvent is a no-op, so callers can always register it unconditionally.
func NewReporter(settings *conf.Settings) (*Reporter, error) {
	log := logging.ForService("telemetry")
	r := &Reporter{log: log}

	if settings == nil || !settings.Telemetry.Enabled || settings.Telemetry.DSN == "" {
		log.Info("telemetry disabled")
		return r, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.DSN,
		AttachStacktrace: true,
		SampleRate:       1.0,
	}); err != nil {
		return r, err
	}

	r.enabled = true
	log.Info("telemetry enabled")
	return r, nil
}

// Name satisfies events.Consumer.
func (r *Reporter) Name() string { return "telemetry" }

// ProcessEvent forwards an unreported *errors.EnhancedError to Sentry.
// Every other event topic is ignored.
func (r *Reporter) ProcessEvent(e events.Event) error {
	if !r.enabled {
		return nil
	}
	ee, ok := e.(*errors.EnhancedError)
	if !ok || !ee.MarkReported() {
		return nil
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component())
		scope.SetTag("category", string(ee.Category))
		for k, v := range ee.Context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(ee)
	})
	return nil
}

// Close flushes any buffered events before the process exits.
func (r *Reporter) Close(timeout time.Duration) {
	if !r.enabled {
		return
	}
	sentry.Flush(timeout)
}
