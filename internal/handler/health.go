package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"issues-proxy-go/internal/config"
	"issues-proxy-go/internal/relay"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information. Credentials are reported only
// as present or absent.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          string(h.version),
		"api_upstream":     h.cfg.Upstream.APIBaseURL,
		"oauth_upstream":   h.cfg.Upstream.OAuthBaseURL,
		"oauth_configured": h.cfg.OAuth.ClientID != "" && h.cfg.OAuth.ClientSecret != "",
		"routes":           len(relay.Routes()),
	})
}
