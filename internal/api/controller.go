package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/logging"
	"github.com/sendspin/endpoint-core/internal/monitor"
	"github.com/sendspin/endpoint-core/internal/playermanager"
)

// Controller owns the echo.Echo instance and every route group, generalized
// from the teacher's api/v2.Controller: one struct, one Group, one
// initRoutes pass, holding onto the collaborators it delegates to rather
// than any audio-domain state of its own.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	manager     *playermanager.Manager
	broadcaster *monitor.Broadcaster
	cards       map[string]string
	log         *slog.Logger

	hub *streamHub
}

// New builds a Controller wired to manager for player CRUD/lifecycle,
// broadcaster for the WebSocket status channel's immediate-snapshot-on-
// subscribe behavior, bus to receive the StatusUpdate events broadcaster
// publishes every tick, and cards for the enumeration endpoint. metrics may
// be nil to skip mounting /metrics (tests that don't care about it).
// Routes are registered immediately; callers start serving with Start.
func New(manager *playermanager.Manager, bus *events.Bus, broadcaster *monitor.Broadcaster, cards map[string]string, metrics *prometheus.Registry) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.INFO)

	c := &Controller{
		Echo:        e,
		manager:     manager,
		broadcaster: broadcaster,
		cards:       cards,
		log:         logging.ForService("api"),
	}
	c.hub = newStreamHub(c.log)
	logging.AddSink(c.hub)

	if bus != nil {
		if err := bus.RegisterConsumer(c); err != nil {
			c.log.Error("failed to register api as event consumer", "error", err)
		}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(c.loggingMiddleware)

	c.Group = e.Group("/api")
	c.initRoutes()

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})))
	}

	return c
}

// Name satisfies events.Consumer.
func (c *Controller) Name() string { return "api" }

// ProcessEvent satisfies events.Consumer: every monitor.StatusUpdate is
// forwarded to every connected WebSocket subscriber (spec §6).
func (c *Controller) ProcessEvent(e events.Event) error {
	if su, ok := e.(monitor.StatusUpdate); ok {
		c.hub.broadcastStatus(su)
	}
	return nil
}

// loggingMiddleware logs every request with its outcome, mirroring the
// teacher's structured-logging middleware but against log/slog rather than
// a custom logger type.
func (c *Controller) loggingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		req := ctx.Request()
		res := ctx.Response()
		c.log.Info("api request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", res.Status,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}

// initRoutes registers every endpoint spec §6's REST table names.
func (c *Controller) initRoutes() {
	c.Group.GET("/health", func(ctx echo.Context) error {
		return ok(ctx, http.StatusOK, map[string]string{"status": "ok"})
	})

	c.Group.GET("/players", c.listPlayers)
	c.Group.POST("/players", c.createPlayer)
	c.Group.GET("/players/:name", c.getPlayer)
	c.Group.PUT("/players/:name", c.updatePlayer)
	c.Group.DELETE("/players/:name", c.deletePlayer)
	c.Group.POST("/players/:name/start", c.startPlayer)
	c.Group.POST("/players/:name/stop", c.stopPlayer)
	c.Group.GET("/players/:name/volume", c.getVolume)
	c.Group.POST("/players/:name/volume", c.setVolume)
	c.Group.PUT("/players/:name/offset", c.setOffset)
	c.Group.PUT("/players/:name/mute", c.setMuted)

	c.Group.GET("/devices", c.listDevices)
	c.Group.GET("/cards", c.listCards)
	c.Group.GET("/providers", c.listProviders)

	c.Group.GET("/stream", c.handleStream)
}

// Start begins serving HTTP on addr. Blocks until Shutdown is called; run
// it in a goroutine.
func (c *Controller) Start(addr string) error {
	if err := c.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and disconnects every WebSocket client.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.hub.closeAll()
	return c.Echo.Shutdown(ctx)
}
