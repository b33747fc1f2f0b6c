// Package metrics provides custom Prometheus metrics for the peekapi capture engine.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/peekapi/peekapi/internal/audiocore"
)

// Snapshot outcome label values.
const (
	SnapshotStatusSuccess = "success"
	SnapshotStatusError   = "error"
)

var captureStates = []audiocore.State{
	audiocore.StateStopped,
	audiocore.StateAcquiring,
	audiocore.StateStreaming,
	audiocore.StateCooldown,
}

// RecorderMetrics contains all Prometheus metrics related to loopback capture
// and snapshots. It implements audiocore.Observer.
type RecorderMetrics struct {
	CaptureHealthy      prometheus.Gauge       // 1 while a device is acquired and streaming
	CaptureState        *prometheus.GaugeVec   // 1 for the current loop state
	DeviceAcquisitions  prometheus.Counter     // Successful device acquisitions
	DeviceFailures      *prometheus.CounterVec // Failures by kind: acquire, stream
	ConsecutiveFailures prometheus.Gauge       // Failures since the last acquisition
	CapturedSamples     prometheus.Counter     // Samples appended to the buffer
	ClippedSamples      prometheus.Counter     // Samples saturated by gain
	SnapshotsTotal      *prometheus.CounterVec // Snapshots by status
	SnapshotEncode      prometheus.Histogram   // Snapshot copy and encode latency
	BufferSamples       prometheus.GaugeFunc   // Samples currently buffered

	bufferProvider atomic.Pointer[func() int]
	registry       *prometheus.Registry
}

// NewRecorderMetrics creates a new instance of RecorderMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewRecorderMetrics(registry *prometheus.Registry) (*RecorderMetrics, error) {
	m := &RecorderMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recorder metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for RecorderMetrics.
func (m *RecorderMetrics) initMetrics() {
	m.CaptureHealthy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peekapi_capture_healthy",
		Help: "Whether loopback capture is currently healthy (1=healthy, 0=unhealthy)",
	})

	m.CaptureState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "peekapi_capture_state",
			Help: "Current capture loop state, 1 for the active state",
		},
		[]string{"state"}, // stopped, acquiring, streaming, cooldown
	)

	m.DeviceAcquisitions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peekapi_device_acquisitions_total",
		Help: "Total number of successful loopback device acquisitions",
	})

	m.DeviceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekapi_device_failures_total",
			Help: "Total number of device failures by kind",
		},
		[]string{"kind"}, // acquire, stream
	)

	m.ConsecutiveFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peekapi_device_consecutive_failures",
		Help: "Device failures since the last successful acquisition",
	})

	m.CapturedSamples = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peekapi_captured_samples_total",
		Help: "Total number of samples appended to the capture buffer",
	})

	m.ClippedSamples = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peekapi_clipped_samples_total",
		Help: "Total number of samples saturated by the gain stage",
	})

	m.SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peekapi_snapshots_total",
			Help: "Total number of snapshot requests by status",
		},
		[]string{"status"}, // success, error
	)

	m.SnapshotEncode = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "peekapi_snapshot_encode_seconds",
		Help:    "Time taken to copy and encode a snapshot",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // 1ms to 1s
	})

	m.BufferSamples = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "peekapi_buffer_samples",
			Help: "Number of samples currently held in the capture buffer",
		},
		func() float64 {
			if fn := m.bufferProvider.Load(); fn != nil {
				return float64((*fn)())
			}
			return 0
		},
	)

	// Expose every state from the start so dashboards see zeros
	for _, s := range captureStates {
		m.CaptureState.WithLabelValues(s.String()).Set(0)
	}
	m.CaptureState.WithLabelValues(audiocore.StateStopped.String()).Set(1)
	for _, kind := range []audiocore.FailureKind{audiocore.FailureAcquire, audiocore.FailureStream} {
		m.DeviceFailures.WithLabelValues(string(kind))
	}
}

// SetBufferProvider sets the function reporting the buffered sample count.
func (m *RecorderMetrics) SetBufferProvider(fn func() int) {
	m.bufferProvider.Store(&fn)
}

// RecordSnapshot records a snapshot request outcome and its latency.
func (m *RecorderMetrics) RecordSnapshot(status string, duration time.Duration) {
	m.SnapshotsTotal.WithLabelValues(status).Inc()
	if status == SnapshotStatusSuccess {
		m.SnapshotEncode.Observe(duration.Seconds())
	}
}

// StateChanged implements audiocore.Observer.
func (m *RecorderMetrics) StateChanged(state audiocore.State) {
	for _, s := range captureStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.CaptureState.WithLabelValues(s.String()).Set(value)
	}
	if state == audiocore.StateStopped {
		m.CaptureHealthy.Set(0)
	}
}

// DeviceAcquired implements audiocore.Observer.
func (m *RecorderMetrics) DeviceAcquired(string) {
	m.DeviceAcquisitions.Inc()
	m.ConsecutiveFailures.Set(0)
	m.CaptureHealthy.Set(1)
}

// DeviceFailed implements audiocore.Observer.
func (m *RecorderMetrics) DeviceFailed(kind audiocore.FailureKind, consecutive int, _ error) {
	m.DeviceFailures.WithLabelValues(string(kind)).Inc()
	m.ConsecutiveFailures.Set(float64(consecutive))
	m.CaptureHealthy.Set(0)
}

// BlockCaptured implements audiocore.Observer.
func (m *RecorderMetrics) BlockCaptured(samples, clipped int) {
	m.CapturedSamples.Add(float64(samples))
	if clipped > 0 {
		m.ClippedSamples.Add(float64(clipped))
	}
}

// Describe implements the prometheus.Collector interface.
func (m *RecorderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.CaptureHealthy.Describe(ch)
	m.CaptureState.Describe(ch)
	m.DeviceAcquisitions.Describe(ch)
	m.DeviceFailures.Describe(ch)
	m.ConsecutiveFailures.Describe(ch)
	m.CapturedSamples.Describe(ch)
	m.ClippedSamples.Describe(ch)
	m.SnapshotsTotal.Describe(ch)
	m.SnapshotEncode.Describe(ch)
	m.BufferSamples.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *RecorderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.CaptureHealthy.Collect(ch)
	m.CaptureState.Collect(ch)
	m.DeviceAcquisitions.Collect(ch)
	m.DeviceFailures.Collect(ch)
	m.ConsecutiveFailures.Collect(ch)
	m.CapturedSamples.Collect(ch)
	m.ClippedSamples.Collect(ch)
	m.SnapshotsTotal.Collect(ch)
	m.SnapshotEncode.Collect(ch)
	m.BufferSamples.Collect(ch)
}
