package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peekapi/peekapi/internal/audiocore"
)

func newTestMetrics(t *testing.T) *RecorderMetrics {
	t.Helper()
	m, err := NewRecorderMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestRecorderMetricsDoubleRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewRecorderMetrics(registry)
	require.NoError(t, err)
	_, err = NewRecorderMetrics(registry)
	require.Error(t, err)
}

func TestRecorderMetricsDeviceLifecycle(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	var obs audiocore.Observer = m

	obs.StateChanged(audiocore.StateAcquiring)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.CaptureState.WithLabelValues("acquiring")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.CaptureState.WithLabelValues("stopped")), 0)

	obs.DeviceFailed(audiocore.FailureAcquire, 1, audiocore.ErrDeviceUnavailable)
	obs.DeviceFailed(audiocore.FailureAcquire, 2, audiocore.ErrDeviceUnavailable)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.DeviceFailures.WithLabelValues("acquire")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.ConsecutiveFailures), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.CaptureHealthy), 0)

	obs.DeviceAcquired("Speakers")
	obs.StateChanged(audiocore.StateStreaming)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.DeviceAcquisitions), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.ConsecutiveFailures), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.CaptureHealthy), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.CaptureState.WithLabelValues("streaming")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.CaptureState.WithLabelValues("acquiring")), 0)

	obs.BlockCaptured(4410, 0)
	obs.BlockCaptured(4410, 12)
	assert.InDelta(t, 8820.0, testutil.ToFloat64(m.CapturedSamples), 0)
	assert.InDelta(t, 12.0, testutil.ToFloat64(m.ClippedSamples), 0)

	obs.StateChanged(audiocore.StateStopped)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.CaptureHealthy), 0)
}

func TestRecorderMetricsSnapshots(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.RecordSnapshot(SnapshotStatusSuccess, 2*time.Millisecond)
	m.RecordSnapshot(SnapshotStatusSuccess, 2*time.Millisecond)
	m.RecordSnapshot(SnapshotStatusError, time.Millisecond)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues(SnapshotStatusSuccess)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues(SnapshotStatusError)), 0)

	expected := `
# HELP peekapi_snapshot_encode_seconds Time taken to copy and encode a snapshot
# TYPE peekapi_snapshot_encode_seconds histogram
peekapi_snapshot_encode_seconds_bucket{le="0.001"} 0
peekapi_snapshot_encode_seconds_bucket{le="0.005"} 2
peekapi_snapshot_encode_seconds_bucket{le="0.01"} 2
peekapi_snapshot_encode_seconds_bucket{le="0.025"} 2
peekapi_snapshot_encode_seconds_bucket{le="0.05"} 2
peekapi_snapshot_encode_seconds_bucket{le="0.1"} 2
peekapi_snapshot_encode_seconds_bucket{le="0.25"} 2
peekapi_snapshot_encode_seconds_bucket{le="0.5"} 2
peekapi_snapshot_encode_seconds_bucket{le="1"} 2
peekapi_snapshot_encode_seconds_bucket{le="+Inf"} 2
peekapi_snapshot_encode_seconds_sum 0.004
peekapi_snapshot_encode_seconds_count 2
`
	require.NoError(t, testutil.CollectAndCompare(m.SnapshotEncode, strings.NewReader(expected)))
}

func TestRecorderMetricsBufferProvider(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.BufferSamples), 0)

	m.SetBufferProvider(func() int { return 882000 })
	assert.InDelta(t, 882000.0, testutil.ToFloat64(m.BufferSamples), 0)
}
