// Package events provides a non-blocking publish/subscribe bus used by the
// status broadcaster, the TAB's target_playback_rate_changed notifications,
// and the error builder's optional telemetry hook. Publishers never block:
// a full buffer drops the event and bumps a counter rather than stalling
// the device callback or lifecycle goroutine that published it.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sendspin/endpoint-core/internal/logging"
)

// Bus fans out events to registered consumers via a worker pool.
type Bus struct {
	eventChan chan Event
	workers   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running atomic.Bool

	mu        sync.Mutex
	consumers []Consumer

	received       atomic.Uint64
	processed      atomic.Uint64
	dropped        atomic.Uint64
	consumerErrors atomic.Uint64
}

// Config controls bus sizing.
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns reasonable defaults for a single-process endpoint.
func DefaultConfig() Config {
	return Config{BufferSize: 1024, Workers: 2}
}

// New creates and starts a Bus. Callers own its lifetime and must call
// Shutdown when done (typically on process SIGTERM, per spec §6).
func New(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Workers < 0 {
		cfg.Workers = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		eventChan: make(chan Event, cfg.BufferSize),
		workers:   cfg.Workers,
		ctx:       ctx,
		cancel:    cancel,
	}
	b.start()
	return b
}

func (b *Bus) start() {
	if b.running.Swap(true) {
		return
	}
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	logger := logging.ForService("events").With("worker", id)
	for {
		select {
		case <-b.ctx.Done():
			return
		case ev, ok := <-b.eventChan:
			if !ok {
				return
			}
			b.dispatch(ev, logger)
		}
	}
}

func (b *Bus) dispatch(ev Event, logger interface {
	Error(string, ...any)
}) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, c := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.consumerErrors.Add(1)
					logger.Error("event consumer panicked", "consumer", c.Name(), "panic", r, "topic", ev.Topic())
				}
			}()
			if err := c.ProcessEvent(ev); err != nil {
				b.consumerErrors.Add(1)
				logger.Error("event consumer failed", "consumer", c.Name(), "error", err.Error(), "topic", ev.Topic())
			} else {
				b.processed.Add(1)
			}
		}()
	}
}

// RegisterConsumer adds a consumer. Returns an error if the name is
// already registered (consumers must Unsubscribe first, per spec §9's
// "event handlers must be unsubscribed on destruction" rule).
func (b *Bus) RegisterConsumer(c Consumer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.consumers {
		if existing.Name() == c.Name() {
			return fmt.Errorf("consumer %q already registered", c.Name())
		}
	}
	b.consumers = append(b.consumers, c)
	return nil
}

// Unsubscribe removes a consumer by name. A no-op if not registered, so
// pipeline teardown can call it unconditionally.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.consumers {
		if c.Name() == name {
			b.consumers = append(b.consumers[:i], b.consumers[i+1:]...)
			return
		}
	}
}

// HasActiveConsumers reports whether anything is currently subscribed.
func (b *Bus) HasActiveConsumers() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.consumers) > 0
}

// TryPublish attempts a non-blocking send. Returns false if the bus is nil,
// not running or full, or if event is not an Event; only the full case
// bumps the dropped counter. The nil case lets the error builder call this
// unconditionally even before the bus exists.
func (b *Bus) TryPublish(event any) bool {
	if b == nil || !b.running.Load() {
		return false
	}
	ev, ok := event.(Event)
	if !ok {
		return false
	}
	select {
	case b.eventChan <- ev:
		b.received.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Stats returns a snapshot of bus throughput counters.
func (b *Bus) Stats() BusStats {
	return BusStats{
		Received:       b.received.Load(),
		Processed:      b.processed.Load(),
		Dropped:        b.dropped.Load(),
		ConsumerErrors: b.consumerErrors.Load(),
	}
}

// Shutdown stops all workers, waiting up to timeout for in-flight events
// to drain.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil || !b.running.Swap(false) {
		return nil
	}
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("event bus shutdown timeout exceeded")
	}
}
