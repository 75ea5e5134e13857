// Package api implements the REST and WebSocket control plane (spec §6): a
// thin echo.Echo-based layer translating HTTP requests into
// internal/playermanager calls and internal/monitor snapshots into
// WebSocket pushes. No audio-domain logic lives here.
package api
