package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"subdomain-proxy-go/internal/config"
	"subdomain-proxy-go/internal/server"
)

// Version is a string type for dependency injection of the build version.
type Version string

// StatsSource reports the proxy listener's connection and session counts.
type StatsSource interface {
	Stats() server.Stats
}

// HealthHandler serves health and status endpoints on the admin listener.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	stats   StatsSource
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, stats StatsSource) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, stats: stats}
}

// Healthz returns a simple OK response for liveness checks.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status     string       `json:"status"`
	Version    string       `json:"version"`
	BaseDomain string       `json:"base_domain"`
	Listener   server.Stats `json:"listener"`
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:     "ok",
		Version:    string(h.version),
		BaseDomain: h.cfg.Upstream.BaseDomain,
		Listener:   h.stats.Stats(),
	})
}
