package protocol

// StreamStarted is published when the handshake completes and the adapter
// enters Streaming, and again each time a resume signal moves it from
// Paused back to Streaming.
type StreamStarted struct {
	Endpoint string
}

func (StreamStarted) Topic() string { return "stream_started" }

// StreamPaused is published on Streaming -> Paused.
type StreamPaused struct {
	Endpoint string
}

func (StreamPaused) Topic() string { return "stream_paused" }

// StreamEnded is published when the source signals end of stream or the
// connection drops, in either case returning the adapter to Disconnected.
type StreamEnded struct {
	Endpoint string
	Reason   string
}

func (StreamEnded) Topic() string { return "stream_ended" }

// Reanchored is published whenever the adapter reanchors: the playout
// timeline restarted (a seek or transport reset) and the drift estimate
// was preserved while the offset was cleared (spec §4.3, §4.8).
type Reanchored struct {
	Endpoint string
}

func (Reanchored) Topic() string { return "stream_reanchored" }

// StateChanged is published on every StreamState transition, mirroring the
// player package's own StateChanged event.
type StateChanged struct {
	Endpoint string
	From     StreamState
	To       StreamState
}

func (StateChanged) Topic() string { return "protocol_state_changed" }

// ErrorOccurred is published when the adapter's run loop traps a
// FrameSource error or a buffer write failure instead of crashing the
// network/decode task.
type ErrorOccurred struct {
	Endpoint string
	Message  string
}

func (ErrorOccurred) Topic() string { return "protocol_error_occurred" }
