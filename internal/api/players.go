package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (c *Controller) listPlayers(ctx echo.Context) error {
	return ok(ctx, http.StatusOK, fromSnapshots(c.manager.List()))
}

func (c *Controller) createPlayer(ctx echo.Context) error {
	var req PlayerRequest
	if err := ctx.Bind(&req); err != nil {
		return c.badRequest(ctx, err, "malformed request body")
	}

	snap, err := c.manager.Create(req.toConfig())
	if err != nil {
		return c.handleError(ctx, err, "create player")
	}
	return ok(ctx, http.StatusOK, fromSnapshot(snap))
}

func (c *Controller) getPlayer(ctx echo.Context) error {
	snap, err := c.manager.Get(ctx.Param("name"))
	if err != nil {
		return c.handleError(ctx, err, "get player")
	}
	return ok(ctx, http.StatusOK, fromSnapshot(snap))
}

func (c *Controller) updatePlayer(ctx echo.Context) error {
	name := ctx.Param("name")
	var req PlayerRequest
	if err := ctx.Bind(&req); err != nil {
		return c.badRequest(ctx, err, "malformed request body")
	}

	cfg := req.toConfig()
	cfg.Name = name
	snap, err := c.manager.Update(name, cfg)
	if err != nil {
		return c.handleError(ctx, err, "update player")
	}
	return ok(ctx, http.StatusOK, fromSnapshot(snap))
}

func (c *Controller) deletePlayer(ctx echo.Context) error {
	if err := c.manager.Delete(ctx.Request().Context(), ctx.Param("name")); err != nil {
		return c.handleError(ctx, err, "delete player")
	}
	return okMessage(ctx, http.StatusOK, "player deleted", nil)
}

func (c *Controller) startPlayer(ctx echo.Context) error {
	name := ctx.Param("name")
	if err := c.manager.Start(ctx.Request().Context(), name); err != nil {
		return c.handleError(ctx, err, "start player")
	}
	snap, err := c.manager.Get(name)
	if err != nil {
		return c.handleError(ctx, err, "start player")
	}
	return ok(ctx, http.StatusOK, fromSnapshot(snap))
}

func (c *Controller) stopPlayer(ctx echo.Context) error {
	name := ctx.Param("name")
	if err := c.manager.Stop(ctx.Request().Context(), name); err != nil {
		return c.handleError(ctx, err, "stop player")
	}
	snap, err := c.manager.Get(name)
	if err != nil {
		return c.handleError(ctx, err, "stop player")
	}
	return ok(ctx, http.StatusOK, fromSnapshot(snap))
}

func (c *Controller) getVolume(ctx echo.Context) error {
	snap, err := c.manager.Get(ctx.Param("name"))
	if err != nil {
		return c.handleError(ctx, err, "get volume")
	}
	return ok(ctx, http.StatusOK, VolumeRequest{Volume: snap.Config.Volume})
}

func (c *Controller) setVolume(ctx echo.Context) error {
	name := ctx.Param("name")
	var req VolumeRequest
	if err := ctx.Bind(&req); err != nil {
		return c.badRequest(ctx, err, "malformed request body")
	}
	if err := c.manager.SetVolume(name, req.Volume); err != nil {
		return c.handleError(ctx, err, "set volume")
	}
	return okMessage(ctx, http.StatusOK, "volume updated", VolumeRequest{Volume: req.Volume})
}

func (c *Controller) setMuted(ctx echo.Context) error {
	name := ctx.Param("name")
	var req MuteRequest
	if err := ctx.Bind(&req); err != nil {
		return c.badRequest(ctx, err, "malformed request body")
	}
	if err := c.manager.SetMuted(name, req.Muted); err != nil {
		return c.handleError(ctx, err, "set mute")
	}
	return okMessage(ctx, http.StatusOK, "mute updated", MuteRequest{Muted: req.Muted})
}

func (c *Controller) setOffset(ctx echo.Context) error {
	name := ctx.Param("name")
	var req OffsetRequest
	if err := ctx.Bind(&req); err != nil {
		return c.badRequest(ctx, err, "malformed request body")
	}
	if err := c.manager.SetOffset(name, req.DelayMS); err != nil {
		return c.handleError(ctx, err, "set offset")
	}
	return okMessage(ctx, http.StatusOK, "offset updated", OffsetRequest{DelayMS: req.DelayMS})
}
