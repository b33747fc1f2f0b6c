package httpcontroller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/peekapi/peekapi/internal/logger"
)

// MIMEAudioWAV is the content type of snapshots.
const MIMEAudioWAV = "audio/wav"

// HealthResponse is the /health body.
type HealthResponse struct {
	Healthy         bool    `json:"healthy"`
	Running         bool    `json:"running"`
	State           string  `json:"state"`
	Device          string  `json:"device,omitempty"`
	BufferedSeconds float64 `json:"buffered_seconds"`
	CapacitySeconds float64 `json:"capacity_seconds"`
	Gain            float64 `json:"gain"`
}

// handleRecord returns the last seconds of system audio as WAV.
func (s *Server) handleRecord(c echo.Context) error {
	data, err := s.recorder.GetSnapshot()
	if err != nil {
		s.requestLog(c).Error("snapshot failed", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to capture audio")
	}

	s.requestLog(c).Info("snapshot served", logger.Int("bytes", len(data)))
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, MIMEAudioWAV, data)
}

// handleRestart restarts capture, for example after switching output devices.
func (s *Server) handleRestart(c echo.Context) error {
	s.requestLog(c).Info("capture restart requested")
	s.recorder.Restart()
	return c.JSON(http.StatusOK, s.healthResponse())
}

// handleInfo returns the host inventory.
func (s *Server) handleInfo(c echo.Context) error {
	info, err := s.inventory.Get(c.Request().Context())
	if err != nil {
		return err
	}
	s.requestLog(c).Info("device info served")
	return c.JSON(http.StatusOK, info)
}

// handleHealth reports capture health, 503 while no device is streaming.
func (s *Server) handleHealth(c echo.Context) error {
	resp := s.healthResponse()
	code := http.StatusOK
	if !resp.Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// handleCheck reports liveness of the HTTP service itself.
func (s *Server) handleCheck(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) healthResponse() HealthResponse {
	st := s.recorder.Status()
	return HealthResponse{
		Healthy:         s.recorder.IsHealthy(),
		Running:         st.Running,
		State:           st.State,
		Device:          st.Device,
		BufferedSeconds: st.BufferedSeconds,
		CapacitySeconds: st.CapacitySeconds,
		Gain:            st.Gain,
	}
}
