package telemetry

import (
	"testing"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/errors"
)

func TestNewReporter_DisabledWhenTelemetryOff(t *testing.T) {
	settings := conf.DefaultSettings()
	settings.Telemetry.Enabled = false

	r, err := NewReporter(settings)
	if err != nil {
		t.Fatalf("NewReporter: %v", err)
	}
	if r.enabled {
		t.Fatal("expected a disabled reporter when Telemetry.Enabled is false")
	}
}

func TestNewReporter_DisabledWithoutDSN(t *testing.T) {
	settings := conf.DefaultSettings()
	settings.Telemetry.Enabled = true
	settings.Telemetry.DSN = ""

	r, err := NewReporter(settings)
	if err != nil {
		t.Fatalf("NewReporter: %v", err)
	}
	if r.enabled {
		t.Fatal("expected a disabled reporter with an empty DSN")
	}
}

type otherEvent struct{}

func (otherEvent) Topic() string { return "other" }

func TestReporter_ProcessEventIgnoresNonErrorEvents(t *testing.T) {
	r := &Reporter{enabled: true}
	if err := r.ProcessEvent(otherEvent{}); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
}

func TestReporter_ProcessEventNoopWhenDisabled(t *testing.T) {
	r := &Reporter{enabled: false}
	ee := errors.Newf("disabled reporter should ignore this").Build()
	if err := r.ProcessEvent(ee); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	// MarkReported should still be untouched since the disabled path
	// returns before ever looking at the error.
	if !ee.MarkReported() {
		t.Fatal("expected MarkReported to still return true on first call")
	}
}
