package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sendspin/endpoint-core/internal/playermanager"
)

// Envelope is the response body every handler in this package returns
// (spec §6): both Error and Message may be populated, and clients must
// treat them as synonyms (Open Question (a)).
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(ctx echo.Context, code int, data any) error {
	return ctx.JSON(code, Envelope{Success: true, Data: data})
}

func okMessage(ctx echo.Context, code int, message string, data any) error {
	return ctx.JSON(code, Envelope{Success: true, Message: message, Data: data})
}

// statusFor maps a playermanager.FailureMode to the HTTP status spec §6
// names for it. Errors that didn't come from playermanager (e.g. a
// malformed JSON body) are treated as validation failures by callers
// before statusFor is ever consulted.
func statusFor(err error) int {
	switch playermanager.FailureModeOf(err) {
	case playermanager.FailureNameInvalid, playermanager.FailureDeviceInvalid:
		return http.StatusBadRequest
	case playermanager.FailureNotFound:
		return http.StatusNotFound
	case playermanager.FailureTimeout:
		return http.StatusRequestTimeout
	case playermanager.FailureNameConflict, playermanager.FailureAlreadyRunning,
		playermanager.FailureNotRunning, playermanager.FailureBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes an error envelope, deriving the status code from the
// playermanager.FailureMode tagged onto err, if any.
func (c *Controller) handleError(ctx echo.Context, err error, message string) error {
	code := statusFor(err)
	c.log.Warn("api request failed", "path", ctx.Request().URL.Path, "method", ctx.Request().Method,
		"status", code, "message", message, "error", err)
	return ctx.JSON(code, Envelope{Error: err.Error(), Message: message})
}

// badRequest writes a 400 envelope for errors that never reach
// playermanager (malformed JSON, missing path params).
func (c *Controller) badRequest(ctx echo.Context, err error, message string) error {
	c.log.Warn("api request failed", "path", ctx.Request().URL.Path, "method", ctx.Request().Method,
		"status", http.StatusBadRequest, "message", message, "error", err)
	return ctx.JSON(http.StatusBadRequest, Envelope{Error: err.Error(), Message: message})
}
