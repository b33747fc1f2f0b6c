package httpcontroller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peekapi/peekapi/internal/audiocore/export"
	"github.com/peekapi/peekapi/internal/conf"
	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
	"github.com/peekapi/peekapi/internal/recorder"
	"github.com/peekapi/peekapi/internal/systeminfo"
)

type fakeRecorder struct {
	snapshot    []byte
	snapshotErr error
	healthy     bool
	restarts    atomic.Int32
}

func (f *fakeRecorder) GetSnapshot() ([]byte, error) { return f.snapshot, f.snapshotErr }
func (f *fakeRecorder) IsHealthy() bool              { return f.healthy }
func (f *fakeRecorder) Restart()                     { f.restarts.Add(1) }
func (f *fakeRecorder) Status() recorder.Status {
	state := "acquiring"
	if f.healthy {
		state = "streaming"
	}
	return recorder.Status{
		Running:         true,
		Healthy:         f.healthy,
		State:           state,
		Device:          "Speakers",
		BufferedSeconds: 12.5,
		CapacitySeconds: 20,
		Gain:            20,
	}
}

type fakeInventory struct {
	err error
}

func (f fakeInventory) Get(context.Context) (systeminfo.Info, error) {
	if f.err != nil {
		return systeminfo.Info{}, f.err
	}
	return systeminfo.Info{Hostname: "studio-pc", CPU: "AMD Ryzen 7 5800X"}, nil
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Basic.Public = true
	s.Basic.Host = "127.0.0.1"
	s.Basic.Port = 1920
	s.Metrics.Enabled = true
	return s
}

func newTestServer(t *testing.T, settings *conf.Settings, rec Recorder, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{
		WithLogger(logger.NewDiscard()),
		WithInventory(fakeInventory{}),
	}, opts...)
	return New(settings, rec, opts...)
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, httptest.NewRequest(method, target, http.NoBody))
	return rec
}

func emptyWAV(t *testing.T) []byte {
	t.Helper()
	data, err := export.EncodeWAV(nil, 44100)
	require.NoError(t, err)
	return data
}

func TestRecordRoute(t *testing.T) {
	t.Parallel()

	wav := emptyWAV(t)
	tests := []struct {
		name       string
		public     bool
		snapErr    error
		wantStatus int
	}{
		{name: "serves snapshot", public: true, wantStatus: http.StatusOK},
		{name: "private mode", public: false, wantStatus: http.StatusForbidden},
		{name: "encoding failure", public: true, snapErr: fmt.Errorf("encoder broke"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := testSettings()
			settings.Basic.Public = tt.public
			s := newTestServer(t, settings, &fakeRecorder{snapshot: wav, snapshotErr: tt.snapErr, healthy: true})

			rec := serve(s, http.MethodGet, "/record")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, MIMEAudioWAV, rec.Header().Get(echo.HeaderContentType))
				assert.Equal(t, wav, rec.Body.Bytes())
			} else {
				assert.NotContains(t, rec.Body.String(), "encoder broke", "internal errors are not exposed")
			}
		})
	}
}

func TestCheckRoute(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Basic.Public = false
	s := newTestServer(t, settings, &fakeRecorder{})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := serve(s, method, "/check")
		assert.Equal(t, http.StatusOK, rec.Code, method)
		assert.Equal(t, "ok", rec.Body.String(), method)
	}
}

func TestHealthRoute(t *testing.T) {
	t.Parallel()

	for _, healthy := range []bool{true, false} {
		s := newTestServer(t, testSettings(), &fakeRecorder{healthy: healthy})
		rec := serve(s, http.MethodGet, "/health")

		want := http.StatusOK
		if !healthy {
			want = http.StatusServiceUnavailable
		}
		assert.Equal(t, want, rec.Code)

		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, healthy, body.Healthy)
		assert.True(t, body.Running)
		assert.InDelta(t, 12.5, body.BufferedSeconds, 0)
		assert.InDelta(t, 20.0, body.CapacitySeconds, 0)
	}
}

func TestRestartRoute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		apiKey       string
		target       string
		wantStatus   int
		wantRestarts int32
	}{
		{name: "no key configured", apiKey: "", target: "/record/restart", wantStatus: http.StatusOK, wantRestarts: 1},
		{name: "missing key", apiKey: "s3cret", target: "/record/restart", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", apiKey: "s3cret", target: "/record/restart?k=guess", wantStatus: http.StatusUnauthorized},
		{name: "valid key", apiKey: "s3cret", target: "/record/restart?k=s3cret", wantStatus: http.StatusOK, wantRestarts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := testSettings()
			settings.Basic.APIKey = tt.apiKey
			fake := &fakeRecorder{healthy: true}
			s := newTestServer(t, settings, fake)

			rec := serve(s, http.MethodPost, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantRestarts, fake.restarts.Load())
		})
	}
}

func TestInfoRoute(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testSettings(), &fakeRecorder{})
	rec := serve(s, http.MethodGet, "/info")
	require.Equal(t, http.StatusOK, rec.Code)

	var info systeminfo.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "studio-pc", info.Hostname)

	settings := testSettings()
	settings.Basic.Public = false
	private := newTestServer(t, settings, &fakeRecorder{})
	assert.Equal(t, http.StatusForbidden, serve(private, http.MethodGet, "/info").Code)

	failing := newTestServer(t, testSettings(), &fakeRecorder{}, WithInventory(fakeInventory{err: fmt.Errorf("wmi timeout")}))
	assert.Equal(t, http.StatusInternalServerError, serve(failing, http.MethodGet, "/info").Code)

	timeout := errors.Newf("inventory lookup timed out").Component("systeminfo").Category(errors.CategoryTimeout).Build()
	slow := newTestServer(t, testSettings(), &fakeRecorder{}, WithInventory(fakeInventory{err: timeout}))
	rec = serve(slow, http.MethodGet, "/info")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "lookup timed out")
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("peekapi_capture_healthy 1\n"))
	})

	s := newTestServer(t, testSettings(), &fakeRecorder{}, WithMetricsHandler(handler))
	rec := serve(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "peekapi_capture_healthy")

	settings := testSettings()
	settings.Metrics.Enabled = false
	disabled := newTestServer(t, settings, &fakeRecorder{}, WithMetricsHandler(handler))
	assert.Equal(t, http.StatusNotFound, serve(disabled, http.MethodGet, "/metrics").Code)
}

func TestRequestIDAndLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewSlogLogger(&buf, logger.LogLevelDebug, nil)

	settings := testSettings()
	settings.Basic.APIKey = "s3cret"
	s := newTestServer(t, settings, &fakeRecorder{}, WithLogger(log))

	rec := serve(s, http.MethodPost, "/record/restart?k=s3cret")
	require.Equal(t, http.StatusOK, rec.Code)

	id := rec.Header().Get(echo.HeaderXRequestID)
	require.Len(t, id, 36, "request id is a UUID")
	assert.Contains(t, buf.String(), id)
	assert.NotContains(t, buf.String(), "k=s3cret", "API key must not be logged")
}

func TestAddress(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testSettings(), &fakeRecorder{})
	assert.Equal(t, "127.0.0.1:1920", s.Address())
}
