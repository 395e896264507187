package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"issues-proxy-go/internal/config"
	"issues-proxy-go/internal/metrics"
	"issues-proxy-go/internal/relay"
)

// RegisterRoutes wires all route handlers onto the Echo instance and tracks
// each path as a metrics route label. Every relay route is served on GET;
// routes that change upstream state are also served on POST.
func RegisterRoutes(e *echo.Echo, rh *RelayHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)
	m.TrackRoutes("/healthz", "/proxy/status")

	for _, route := range relay.Routes() {
		h := rh.Handler(route)
		e.GET(route.Name, h)
		if route.Mutates {
			e.POST(route.Name, h)
		}
		m.TrackRoutes(route.Name)
	}
}

// RegisterMetrics exposes the Prometheus registry when metrics are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) error {
	if !cfg.Metrics.Enabled {
		return nil
	}
	if _, taken := relay.Lookup(cfg.Metrics.Path); taken {
		return fmt.Errorf("metrics.path %q conflicts with relay route", cfg.Metrics.Path)
	}
	m.TrackRoutes(cfg.Metrics.Path)
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	return nil
}
