package httpcontroller

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
)

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return uuid.New().String()
		},
	}))
	s.Echo.Use(s.requestLogger())
}

// PublicOnly rejects requests with 403 while the service is in private mode.
func (s *Server) PublicOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Settings.Basic.Public {
			s.requestLog(c).Info("request rejected: private mode")
			return echo.NewHTTPError(http.StatusForbidden, "service is in private mode")
		}
		return next(c)
	}
}

// RequireAPIKey rejects requests with 401 unless the k query parameter
// matches the configured API key. Without a configured key every request
// passes.
func (s *Server) RequireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		want := s.Settings.Basic.APIKey
		if want == "" {
			return next(c)
		}
		got := c.QueryParam("k")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.requestLog(c).Info("request rejected: invalid API key")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
		}
		return next(c)
	}
}

// requestLog returns a logger carrying the request id as trace id and the
// client IP.
func (s *Server) requestLog(c echo.Context) logger.Logger {
	ctx := logger.WithTraceID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
	return s.log.WithContext(ctx).With(
		logger.String("client_ip", c.RealIP()),
		logger.String("path", c.Request().URL.Path),
	)
}

// errorHandler maps handler errors to JSON responses. Internal details of
// non-HTTP errors are logged, never returned.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	} else {
		code = statusFromError(err)
		message = http.StatusText(code)
		s.requestLog(c).Error("request failed", logger.Error(err), logger.Int("status", code))
	}

	var respErr error
	if c.Request().Method == http.MethodHead {
		respErr = c.NoContent(code)
	} else {
		respErr = c.JSON(code, map[string]string{"error": message})
	}
	if respErr != nil {
		s.log.Debug("failed to write error response", logger.Error(respErr))
	}
}

// statusFromError picks a status code from the category of an enhanced error.
func statusFromError(err error) int {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return http.StatusInternalServerError
	}
	switch errors.ErrorCategory(ee.GetCategory()) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryTimeout, errors.CategoryAudioDevice:
		return http.StatusServiceUnavailable
	case errors.CategoryNetwork, errors.CategoryHTTP:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
