package httpcontroller

import (
	"github.com/labstack/echo/v4"
)

// initRoutes registers all routes.
func (s *Server) initRoutes() {
	s.Echo.GET("/record", s.handleRecord, s.PublicOnly)
	s.Echo.POST("/record/restart", s.handleRestart, s.RequireAPIKey)
	s.Echo.GET("/info", s.handleInfo, s.PublicOnly)
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.Match([]string{echo.GET, echo.POST}, "/check", s.handleCheck)

	if s.Settings.Metrics.Enabled && s.metricsHandler != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}
