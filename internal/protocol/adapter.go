package protocol

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/sendspin/endpoint-core/internal/audiobuffer"
	"github.com/sendspin/endpoint-core/internal/clock"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/logging"
	"github.com/sendspin/endpoint-core/internal/syncest"
)

// Adapter is C8: it pulls Messages from a FrameSource, writes decoded
// frames into the audio buffer, and tracks the connection's StreamState.
// Network, demux, and the wire protocol are entirely behind FrameSource —
// the adapter itself never opens a socket (spec §4.8).
type Adapter struct {
	endpoint  string
	source    FrameSource
	buffer    *audiobuffer.Buffer
	estimator *syncest.Estimator
	bus       *events.Bus
	clk       clock.Clock
	log       *slog.Logger

	sm *stateMachine
}

// New builds an Adapter for one endpoint. clk may be a clock.Fake in tests.
func New(endpoint string, source FrameSource, buffer *audiobuffer.Buffer, estimator *syncest.Estimator, bus *events.Bus, clk clock.Clock) *Adapter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Adapter{
		endpoint:  endpoint,
		source:    source,
		buffer:    buffer,
		estimator: estimator,
		bus:       bus,
		clk:       clk,
		log:       logging.ForService("protocol"),
		sm:        newStateMachine(),
	}
}

// State returns the adapter's current StreamState.
func (a *Adapter) State() StreamState { return a.sm.current() }

// StateHistory returns a bounded, ordered copy of recorded transitions.
func (a *Adapter) StateHistory() []StateTransition { return a.sm.history() }

// Run drives the adapter until the source is exhausted, signals end of
// stream, or ctx is canceled. It enters Handshaking immediately (spec
// §4.8: Disconnected -> Handshaking is the only way out of Disconnected)
// and returns nil on a clean end of stream or cancellation, non-nil only
// when the source itself reports a hard error.
func (a *Adapter) Run(ctx context.Context) error {
	a.apply(StateHandshaking, "connection opened")

	for {
		msg, err := a.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.apply(StateDisconnected, "source closed")
				a.publish(StreamEnded{Endpoint: a.endpoint, Reason: "eof"})
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				a.apply(StateDisconnected, "context canceled")
				return nil
			}
			a.apply(StateError, err.Error())
			a.publish(ErrorOccurred{Endpoint: a.endpoint, Message: err.Error()})
			return err
		}

		a.handle(msg)
		if msg.Kind == MessageEnded {
			return nil
		}
	}
}

func (a *Adapter) handle(msg Message) {
	switch msg.Kind {
	case MessageHandshakeComplete:
		a.apply(StateStreaming, "handshake complete")
		a.publish(StreamStarted{Endpoint: a.endpoint})

	case MessagePause:
		a.apply(StatePaused, "pause signal")
		a.publish(StreamPaused{Endpoint: a.endpoint})

	case MessageResume:
		a.apply(StateStreaming, "resume signal")
		a.publish(StreamStarted{Endpoint: a.endpoint})

	case MessageReanchor:
		a.reanchor()

	case MessageEnded:
		a.apply(StateDisconnected, "end of stream signal")
		a.publish(StreamEnded{Endpoint: a.endpoint, Reason: "signaled"})

	case MessageFrame:
		a.writeFrame(msg.Frame)
	}
}

// reanchor clears C2's buffered audio and reanchors C3 (offset state
// cleared, drift estimate kept), so playback re-locks quickly after a
// stream seek or transport reset instead of relearning drift from
// scratch. C4 is not reset: the adapter holds no reference to the
// converter, which keeps its leftover samples and current ratio.
func (a *Adapter) reanchor() {
	a.buffer.Clear()
	a.estimator.Reanchor()
	a.publish(Reanchored{Endpoint: a.endpoint})
	a.log.Info("reanchored", "endpoint", a.endpoint)
}

func (a *Adapter) writeFrame(f Frame) {
	nowUS := a.clk.NowUS()
	if err := a.buffer.Write(f.Format, f.Samples, f.PlayoutTSUS, nowUS); err != nil {
		a.log.Warn("dropping frame", "endpoint", a.endpoint, "error", err)
		a.publish(ErrorOccurred{Endpoint: a.endpoint, Message: err.Error()})
	}
}

func (a *Adapter) apply(to StreamState, reason string) {
	from, valid := a.sm.transition(to, reason)
	if from == to {
		return
	}
	if !valid {
		a.log.Warn("unexpected protocol state transition", "endpoint", a.endpoint,
			"from", from, "to", to, "reason", reason)
	}
	a.publish(StateChanged{Endpoint: a.endpoint, From: from, To: to})
}

func (a *Adapter) publish(e events.Event) {
	if a.bus == nil {
		return
	}
	a.bus.TryPublish(e)
}
