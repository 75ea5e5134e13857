package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sendspin/endpoint-core/internal/api"
	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/errors"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/logging"
	"github.com/sendspin/endpoint-core/internal/metrics"
	"github.com/sendspin/endpoint-core/internal/monitor"
	"github.com/sendspin/endpoint-core/internal/playermanager"
	"github.com/sendspin/endpoint-core/internal/telemetry"
)

// run builds and serves the daemon until SIGINT or SIGTERM, generalizing
// the teacher's monitorCtrlC/quitChan shutdown idiom to also flush
// playback state on a graceful stop (spec §4.7: "SIGTERM triggers an
// ordered stop of every running player before the process exits").
func run(configPath string) error {
	logging.Init()
	log := logging.ForService("endpointd")

	settings, err := conf.Load(configPath)
	if err != nil {
		log.Error("config load failed, continuing with an empty roster", "error", err)
	}

	bus := events.New(events.DefaultConfig())

	reporter, err := telemetry.NewReporter(settings)
	if err != nil {
		log.Error("telemetry init failed, continuing without it", "error", err)
	} else {
		if err := bus.RegisterConsumer(reporter); err != nil {
			log.Error("failed to register telemetry reporter", "error", err)
		}
		errors.SetEventPublisher(bus)
		defer reporter.Close(5 * time.Second)
	}

	restorer := playermanager.NewPactlCardProfileRestorer(settings.Cards)
	manager := playermanager.New(playermanager.DefaultBackendRegistry(), bus, restorer, playermanager.NewPactlCustomSinkCreator())

	for name, cfg := range settings.Players {
		cfg.Name = name
		if _, err := manager.Create(cfg); err != nil {
			log.Error("failed to register player from config", "player", name, "error", err)
		}
	}

	interval := settings.HTTP.StatusInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	broadcaster := monitor.New(manager, bus, interval)
	broadcaster.Start()
	defer broadcaster.Stop()

	metricsRegistry := prometheus.NewRegistry()
	if err := metricsRegistry.Register(metrics.NewCollector(manager)); err != nil {
		log.Error("failed to register metrics collector", "error", err)
	}

	controller := api.New(manager, bus, broadcaster, settings.Cards, metricsRegistry)

	bootTimeout := settings.HTTP.LifecycleTimeout
	if bootTimeout <= 0 {
		bootTimeout = 5 * time.Second
	}
	bootCtx, bootCancel := context.WithTimeout(context.Background(), bootTimeout+10*time.Second)
	if err := manager.AutostartAllOnBoot(bootCtx); err != nil {
		log.Error("autostart failed for one or more players", "error", err)
	}
	bootCancel()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("control plane listening", "addr", settings.HTTP.Listen)
		serveErr <- controller.Start(settings.HTTP.Listen)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			log.Error("control plane exited unexpectedly", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := controller.Shutdown(shutdownCtx); err != nil {
		log.Error("control plane shutdown error", "error", err)
	}

	stopAllRunning(shutdownCtx, manager, log)

	if err := bus.Shutdown(5 * time.Second); err != nil {
		log.Error("event bus shutdown error", "error", err)
	}

	return nil
}

// stopAllRunning stops every player not already idle, logging but not
// failing on a single player's stop error so one stuck endpoint can't
// block the rest of the fleet from flushing on shutdown.
func stopAllRunning(ctx context.Context, manager *playermanager.Manager, log *slog.Logger) {
	for _, snap := range manager.List() {
		if snap.State == playermanager.RuntimeStopped {
			continue
		}
		if err := manager.Stop(ctx, snap.Name); err != nil {
			log.Error("failed to stop player during shutdown", "player", snap.Name, "error", err)
		}
	}
}
