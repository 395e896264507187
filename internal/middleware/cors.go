package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORS returns a cross-origin middleware for browser callers. With the
// default ["*"] every origin is allowed.
func CORS(origins []string) echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  origins,
		ExposeHeaders: []string{echo.HeaderXRequestID},
	})
}

// RequestID tags each request with a random UUID unless the caller already
// sent an X-Request-Id.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	})
}
