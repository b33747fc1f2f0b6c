package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peekapi/peekapi/internal/audiocore"
)

func TestMetricsHandlerExposesRecorderMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	require.NotNil(t, m.Recorder)

	m.Recorder.DeviceAcquired("Speakers")
	m.Recorder.BlockCaptured(100, 3)
	m.Recorder.StateChanged(audiocore.StateStreaming)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "peekapi_capture_healthy 1")
	assert.Contains(t, text, "peekapi_captured_samples_total 100")
	assert.Contains(t, text, "peekapi_clipped_samples_total 3")
	assert.Contains(t, text, `peekapi_capture_state{state="streaming"} 1`)
	assert.Contains(t, text, `peekapi_device_failures_total{kind="acquire"} 0`)
	assert.Contains(t, text, "go_goroutines")
}

func TestNewMetricsIndependentRegistries(t *testing.T) {
	t.Parallel()

	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err)
	assert.NotSame(t, a.Registry(), b.Registry())
}
