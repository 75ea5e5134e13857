package player

// ErrorOccurred is published when the real-time device callback traps a
// panic or a sample-source error, instead of crashing the device thread
// (spec §4.6).
type ErrorOccurred struct {
	Endpoint string
	Message  string
}

func (ErrorOccurred) Topic() string { return "player_error_occurred" }

// StateChanged is published on every player state transition.
type StateChanged struct {
	Endpoint string
	From     State
	To       State
}

func (StateChanged) Topic() string { return "player_state_changed" }
