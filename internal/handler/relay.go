package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"issues-proxy-go/internal/relay"
)

// secretPattern matches credential query values in URLs embedded in error messages.
var secretPattern = regexp.MustCompile(`(?i)((?:client_secret|code|access_token)=)[^&\s"]+`)

// RelayHandler serves the routing table, one echo handler per route.
type RelayHandler struct {
	relay  *relay.Relay
	logger *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(r *relay.Relay, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		relay:  r,
		logger: logger.With("component", "relay_handler"),
	}
}

// Handler returns the echo handler for route. Parameters are read from the
// query string and, for POST, from a form body. Every path writes exactly
// one response.
func (h *RelayHandler) Handler(route relay.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		params, err := c.FormParams()
		if err != nil {
			h.logger.Warn("unreadable parameters", "err", err, "route", route.Name)
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "malformed request parameters",
			})
		}

		resp, err := h.relay.Forward(&route, &relay.Call{
			Ctx:           req.Context(),
			Params:        params,
			Authorization: req.Header.Get(echo.HeaderAuthorization),
		})
		if err != nil {
			return h.mapError(c, err)
		}

		if resp.Body == nil {
			return c.NoContent(resp.StatusCode)
		}
		return c.JSONBlob(resp.StatusCode, resp.Body)
	}
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	var pe *relay.ParamError
	if errors.As(err, &pe) {
		h.logger.Warn("rejected request", "err", err, "path", path)
		if pe.Missing {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "missing required parameter",
				"field": pe.Field,
			})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":  "invalid parameter",
			"field":  pe.Field,
			"detail": pe.Err.Error(),
		})
	}

	if errors.Is(err, relay.ErrMissingAuthorization) {
		h.logger.Warn("rejected request", "err", err, "path", path)
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Authorization header required",
		})
	}

	h.logger.Error("relay error",
		"err", sanitizeError(err),
		"path", path,
	)

	var se *relay.StatusError
	if errors.As(err, &se) {
		return c.JSON(se.StatusCode, map[string]any{
			"error":  se.Error(),
			"status": se.StatusCode,
		})
	}

	if errors.Is(err, relay.ErrMalformedJSON) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream returned malformed JSON",
		})
	}

	if errors.Is(err, relay.ErrResponseTooLarge) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream response too large",
		})
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

// sanitizeError redacts OAuth credentials from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return secretPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
