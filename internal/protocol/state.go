package protocol

import (
	"fmt"
	"sync"
	"time"
)

// StreamState is the adapter's connection lifecycle (spec §4.8):
// Disconnected -> Handshaking -> Streaming <-> Paused -> (Streaming or
// Disconnected) -> Error.
type StreamState int

const (
	StateDisconnected StreamState = iota
	StateHandshaking
	StateStreaming
	StatePaused
	StateError
)

func (s StreamState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// stateTransitions is the valid-transition table. Any pair absent here is
// rejected by isValidTransition; every state also idempotently transitions
// to itself.
var stateTransitions = map[StreamState]map[StreamState]bool{
	StateDisconnected: {StateHandshaking: true},
	StateHandshaking:  {StateStreaming: true, StateDisconnected: true, StateError: true},
	StateStreaming:    {StatePaused: true, StateDisconnected: true, StateError: true},
	StatePaused:       {StateStreaming: true, StateDisconnected: true, StateError: true},
	StateError:        {StateDisconnected: true},
}

func isValidTransition(from, to StreamState) bool {
	if from == to {
		return true
	}
	return stateTransitions[from][to]
}

// StateTransition is one recorded transition, kept for diagnostics/tests.
type StateTransition struct {
	From      StreamState
	To        StreamState
	Reason    string
	Timestamp time.Time
}

// stateMachine tracks the adapter's current StreamState and a bounded
// history of transitions, applying transitions leniently (an unexpected
// transition is still applied, just logged) so a surprising SDK sequence
// degrades to a visible log line rather than a stuck connection.
type stateMachine struct {
	mu          sync.Mutex
	state       StreamState
	transitions []StateTransition
}

const maxStateHistory = 100

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateDisconnected}
}

func (sm *stateMachine) current() StreamState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// transition moves to "to", recording the transition unless it is
// idempotent (from == to), and reports whether the move followed the
// valid-transition table (callers log a warning on false, but always
// apply the change).
func (sm *stateMachine) transition(to StreamState, reason string) (from StreamState, valid bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from = sm.state
	valid = isValidTransition(from, to)
	if from == to {
		return from, valid
	}

	sm.state = to
	sm.transitions = append(sm.transitions, StateTransition{From: from, To: to, Reason: reason, Timestamp: time.Now()})
	if len(sm.transitions) > maxStateHistory {
		sm.transitions = sm.transitions[len(sm.transitions)-maxStateHistory:]
	}
	return from, valid
}

func (sm *stateMachine) history() []StateTransition {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]StateTransition, len(sm.transitions))
	copy(out, sm.transitions)
	return out
}
