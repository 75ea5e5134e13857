package events

// Event is the minimal interface every published event satisfies. Concrete
// event types (status snapshots, error events, device-list-changed, log
// lines) live in their owning packages and are published through the bus
// as this interface so the bus itself stays domain-agnostic.
type Event interface {
	// Topic groups events for subscribers that only want one kind
	// (e.g. "status", "device_list_changed", "log_entry").
	Topic() string
}

// Consumer receives events delivered by the bus. ProcessEvent must not
// block for long — the bus recovers panics but does not enforce a deadline.
type Consumer interface {
	Name() string
	ProcessEvent(event Event) error
}

// BusStats is a point-in-time snapshot of bus throughput.
type BusStats struct {
	Received uint64
	Processed uint64
	Dropped   uint64
	ConsumerErrors uint64
}
