package httpcontroller

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/peekapi/peekapi/internal/logger"
)

// echoLogAdapter adapts our Logger to implement io.Writer for Echo
type echoLogAdapter struct {
	log logger.Logger
}

// Write implements io.Writer for echoLogAdapter
func (a *echoLogAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		a.log.Info(msg)
	}
	return len(p), nil
}

// requestLogger logs one line per request with its id, client and outcome.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	httpLogger := s.log.Module("request")

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		LogUserAgent: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := logger.LogLevelInfo
			switch {
			case v.Status >= 500:
				level = logger.LogLevelError
			case v.Status >= 400:
				level = logger.LogLevelWarn
			}

			fields := []logger.Field{
				logger.String("request_id", v.RequestID),
				logger.String("client_ip", v.RemoteIP),
				logger.String("method", v.Method),
				logger.String("uri", logger.RedactSensitiveData(v.URI)),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if size := c.Response().Size; size > 0 {
				fields = append(fields, logger.Int64("resp_size", size))
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			if v.Status >= 400 && v.UserAgent != "" {
				fields = append(fields, logger.String("user_agent", v.UserAgent))
			}

			httpLogger.Log(level, "request", fields...)
			return nil
		},
	})
}
