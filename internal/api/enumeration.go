package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// listDevices enumerates every device every registered backend advertises,
// tagging each with the backend that reported it (spec §6: GET
// /api/devices). A single backend failing to enumerate (e.g. no sound
// card present) doesn't fail the whole request — its devices are simply
// omitted, logged as a warning.
func (c *Controller) listDevices(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	var devices []DeviceResponse
	for name, be := range c.manager.Backends() {
		infos, err := be.ListDevices(reqCtx)
		if err != nil {
			c.log.Warn("list devices failed", "backend", name, "error", err)
			continue
		}
		for _, info := range infos {
			devices = append(devices, DeviceResponse{
				Backend:   name,
				ID:        info.ID,
				Name:      info.Name,
				IsDefault: info.IsDefault,
			})
		}
	}
	return ok(ctx, http.StatusOK, devices)
}

// listProviders enumerates the registered backend tags (spec §6: GET
// /api/providers) — "pulse", "alsa", "mock", whichever this process wired.
func (c *Controller) listProviders(ctx echo.Context) error {
	var providers []ProviderResponse
	for name := range c.manager.Backends() {
		providers = append(providers, ProviderResponse{Name: name})
	}
	return ok(ctx, http.StatusOK, providers)
}

// listCards enumerates the configured ALSA card/profile pairs (spec §6:
// GET /api/cards) — the same mapping NewPactlCardProfileRestorer restores
// on startup.
func (c *Controller) listCards(ctx echo.Context) error {
	cards := make([]CardResponse, 0, len(c.cards))
	for card, profile := range c.cards {
		cards = append(cards, CardResponse{Card: card, Profile: profile})
	}
	return ok(ctx, http.StatusOK, cards)
}
