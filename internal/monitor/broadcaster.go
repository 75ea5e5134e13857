// Package monitor implements the process-wide status broadcaster: a
// ticker that polls every endpoint's runtime and publishes a snapshot to
// subscribers (spec §5).
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/logging"
	"github.com/sendspin/endpoint-core/internal/playermanager"
)

// DefaultInterval is the poll period spec §5 names ("polls each runtime
// every 2 s").
const DefaultInterval = 2 * time.Second

// Broadcaster polls a Manager's roster on an interval and publishes a
// StatusUpdate to the shared event bus on every tick, generalizing the
// teacher's SystemMonitor ticker/Start/Stop pattern from host-resource
// polling to endpoint-roster polling.
type Broadcaster struct {
	manager  *playermanager.Manager
	bus      *events.Bus
	interval time.Duration
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Broadcaster. interval <= 0 falls back to DefaultInterval.
func New(manager *playermanager.Manager, bus *events.Bus, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		manager:  manager,
		bus:      bus,
		interval: interval,
		log:      logging.ForService("monitor"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins polling in the background. Safe to call once; call Stop to
// release the goroutine.
func (b *Broadcaster) Start() {
	b.wg.Add(1)
	go b.loop()
	b.log.Info("status broadcaster started", "interval", b.interval)
}

// Stop cancels the poll loop and waits for it to exit.
func (b *Broadcaster) Stop() {
	b.cancel()
	b.wg.Wait()
	b.log.Info("status broadcaster stopped")
}

func (b *Broadcaster) loop() {
	defer b.wg.Done()

	b.publishSnapshot()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.publishSnapshot()
		case <-b.ctx.Done():
			return
		}
	}
}

// Snapshot returns the current status of every known endpoint without
// waiting for the next tick — used to give a newly subscribed WebSocket
// client an immediate snapshot (spec §6).
func (b *Broadcaster) Snapshot() StatusUpdate {
	return b.buildUpdate()
}

func (b *Broadcaster) publishSnapshot() {
	if b.bus == nil {
		return
	}
	b.bus.TryPublish(b.buildUpdate())
}

func (b *Broadcaster) buildUpdate() StatusUpdate {
	snapshots := b.manager.List()
	players := make([]PlayerStatus, len(snapshots))
	for i, snap := range snapshots {
		players[i] = PlayerStatus{
			Name:             snap.Name,
			State:            snap.State.String(),
			Backend:          snap.Config.Backend,
			DeviceID:         snap.Config.DeviceID,
			Volume:           snap.Config.Volume,
			Muted:            snap.Config.Muted,
			Autostart:        snap.Config.Autostart,
			DelayOffsetMS:    snap.Config.DelayOffsetMS,
			LastTransitionAt: snap.LastTransitionAt,
		}
	}
	return StatusUpdate{Players: players, Timestamp: time.Now()}
}
