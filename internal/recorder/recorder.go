// Package recorder exposes the loopback capture engine as a long-lived
// service: Start and Stop the capture goroutine, take WAV snapshots of the
// last seconds of system audio and report health.
package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peekapi/peekapi/internal/audiocore"
	"github.com/peekapi/peekapi/internal/audiocore/capture"
	"github.com/peekapi/peekapi/internal/audiocore/export"
	"github.com/peekapi/peekapi/internal/audiocore/processors"
	"github.com/peekapi/peekapi/internal/conf"
	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
	"github.com/peekapi/peekapi/internal/observability/metrics"
)

// DefaultStopTimeout bounds how long Stop waits for the capture loop.
const DefaultStopTimeout = 5 * time.Second

// Config holds the capture parameters read at Start.
type Config struct {
	SampleRate int     // Hz
	Duration   int     // seconds kept in the buffer
	Gain       float64 // linear gain before int16 conversion
}

// DefaultConfig returns the stock capture parameters.
func DefaultConfig() Config {
	return Config{SampleRate: 44100, Duration: 20, Gain: processors.DefaultGain}
}

// Status is a point-in-time view of the recorder.
type Status struct {
	Running             bool    `json:"running"`
	Healthy             bool    `json:"healthy"`
	State               string  `json:"state"`
	Device              string  `json:"device,omitempty"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	SampleRate          int     `json:"sample_rate"`
	BufferedSamples     int     `json:"buffered_samples"`
	CapacitySamples     int     `json:"capacity_samples"`
	BufferedSeconds     float64 `json:"buffered_seconds"`
	CapacitySeconds     float64 `json:"capacity_seconds"`
	Gain                float64 `json:"gain"`
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder logger. The capture loop logs through it too.
func WithLogger(log logger.Logger) Option {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// WithObserver adds an observer of capture events.
func WithObserver(o audiocore.Observer) Option {
	return func(r *Recorder) {
		r.observers = append(r.observers, o)
	}
}

// WithMetrics records capture and snapshot metrics.
func WithMetrics(m *metrics.RecorderMetrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithReconnectDelay sets the cooldown after a failed acquisition.
func WithReconnectDelay(d time.Duration) Option {
	return func(r *Recorder) {
		if d >= 0 {
			r.reconnectDelay = d
		}
	}
}

// WithFailureThreshold sets the consecutive failure count that escalates
// logging to error level.
func WithFailureThreshold(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.failureThreshold = n
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the capture loop.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// session is one Start..Stop cycle. Its buffer outlives the loop so that
// snapshots taken after Stop still return the last captured audio.
type session struct {
	buffer *capture.SampleBuffer
	loop   *capture.Loop
	rate   int
}

// Recorder owns the capture goroutine and the sample buffer it fills.
type Recorder struct {
	source           audiocore.DeviceSource
	gain             *processors.Gain
	log              logger.Logger
	observers        []audiocore.Observer
	metrics          *metrics.RecorderMetrics
	reconnectDelay   time.Duration
	failureThreshold int
	stopTimeout      time.Duration

	// mu serializes lifecycle operations, snapshots and Status never take it
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	// stale is the done channel of a loop that outlived its stop timeout
	stale    chan struct{}
	running  atomic.Bool
	nextRate atomic.Int64

	// cfg is replaced, never mutated, writers hold mu
	cfg atomic.Pointer[Config]

	session atomic.Pointer[session]
}

// New creates a stopped recorder capturing from source.
func New(cfg Config, source audiocore.DeviceSource, opts ...Option) (*Recorder, error) {
	if source == nil {
		return nil, errors.Newf("recorder requires a device source").
			Component("recorder").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := validateFormat(cfg.SampleRate, cfg.Duration); err != nil {
		return nil, err
	}
	gain, err := processors.NewGain(cfg.Gain)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		source:           source,
		gain:             gain,
		log:              logger.Global().Module("recorder"),
		reconnectDelay:   capture.DefaultReconnectDelay,
		failureThreshold: capture.DefaultFailureThreshold,
		stopTimeout:      DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg.Store(&cfg)
	r.nextRate.Store(int64(cfg.SampleRate))

	if r.metrics != nil {
		r.metrics.SetBufferProvider(func() int {
			if s := r.session.Load(); s != nil {
				return s.buffer.Len()
			}
			return 0
		})
	}
	return r, nil
}

func validateFormat(rate, duration int) error {
	if rate < conf.MinSampleRate || rate > conf.MaxSampleRate {
		return errors.Newf("sample rate must be between %d and %d Hz, got %d", conf.MinSampleRate, conf.MaxSampleRate, rate).
			Component("recorder").
			Category(errors.CategoryValidation).
			Context("sample_rate", rate).
			Build()
	}
	if duration < conf.MinDuration || duration > conf.MaxDuration {
		return errors.Newf("duration must be between %d and %d seconds, got %d", conf.MinDuration, conf.MaxDuration, duration).
			Component("recorder").
			Category(errors.CategoryValidation).
			Context("duration", duration).
			Build()
	}
	return nil
}

// Start spawns the capture loop with a fresh buffer of rate × duration
// samples. It is a no-op when capture is already running, and it refuses to
// start while a loop that missed its stop timeout still holds the device.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked()
}

func (r *Recorder) startLocked() {
	if r.cancel != nil {
		r.log.Debug("start requested while capture is running")
		return
	}
	if r.stale != nil {
		select {
		case <-r.stale:
			r.stale = nil
		default:
			// Opening the device again would race the loop that still holds it
			r.log.Warn("previous capture loop is still stuck in a device call, start refused")
			return
		}
	}

	cfg := r.cfg.Load()
	format := audiocore.Format{SampleRate: cfg.SampleRate, Channels: conf.NumChannels}
	buffer, err := capture.NewSampleBuffer(cfg.SampleRate * cfg.Duration)
	if err != nil {
		r.log.Error("failed to allocate sample buffer", logger.Error(err))
		return
	}

	observers := append([]audiocore.Observer{}, r.observers...)
	if r.metrics != nil {
		observers = append(observers, r.metrics)
	}
	loop, err := capture.NewLoop(capture.LoopConfig{
		Format:           format,
		ReconnectDelay:   r.reconnectDelay,
		FailureThreshold: r.failureThreshold,
	}, r.source, buffer, r.gain,
		capture.WithLogger(r.log),
		capture.WithObserver(audiocore.CombineObservers(observers...)))
	if err != nil {
		r.log.Error("failed to create capture loop", logger.Error(err))
		return
	}

	r.session.Store(&session{buffer: buffer, loop: loop, rate: format.SampleRate})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.running.Store(true)

	go func() {
		defer close(done)
		if err := loop.Run(ctx); err != nil {
			r.log.Error("capture loop exited", logger.Error(err))
		}
	}()

	r.log.Info("recorder started",
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("duration_seconds", cfg.Duration),
		logger.Float64("gain", r.gain.Load()))
}

// Stop cancels the capture loop and waits for it to exit, at most the stop
// timeout. It is a no-op when capture is not running.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Recorder) stopLocked() {
	if r.cancel == nil {
		r.log.Debug("stop requested while capture is stopped")
		return
	}

	r.cancel()
	done := r.done
	r.cancel = nil
	r.done = nil
	r.running.Store(false)

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()

	select {
	case <-done:
		r.log.Info("recorder stopped")
	case <-timer.C:
		// The loop is stuck in a device call, it exits once that returns
		r.stale = done
		r.log.Warn("capture loop did not stop in time",
			logger.Duration("timeout", r.stopTimeout))
	}
}

// Restart stops capture and starts it again with the current configuration.
func (r *Recorder) Restart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Info("restarting capture")
	r.stopLocked()
	r.startLocked()
}

// GetSnapshot returns the buffered audio as a mono 16 bit WAV file. Before the
// first Start it returns a valid WAV with no samples. It never waits on the
// capture loop or on lifecycle operations.
func (r *Recorder) GetSnapshot() ([]byte, error) {
	start := time.Now()

	var samples []int16
	rate := int(r.nextRate.Load())
	if s := r.session.Load(); s != nil {
		samples = s.buffer.Snapshot()
		rate = s.rate
	}

	data, err := export.EncodeWAV(samples, rate)
	if err != nil {
		r.recordSnapshot(metrics.SnapshotStatusError, time.Since(start))
		return nil, errors.New(err).
			Component("recorder").
			Category(errors.CategoryAudioEncoding).
			Context("operation", "snapshot").
			Context("samples", len(samples)).
			Build()
	}

	r.recordSnapshot(metrics.SnapshotStatusSuccess, time.Since(start))
	r.log.Debug("snapshot encoded",
		logger.Int("samples", len(samples)),
		logger.Int("bytes", len(data)),
		logger.Duration("elapsed", time.Since(start)))
	return data, nil
}

func (r *Recorder) recordSnapshot(status string, elapsed time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordSnapshot(status, elapsed)
	}
}

// IsHealthy reports whether capture is running on an acquired device. The
// value may lag the capture loop slightly.
func (r *Recorder) IsHealthy() bool {
	if !r.running.Load() {
		return false
	}
	if s := r.session.Load(); s != nil {
		return s.loop.Healthy()
	}
	return false
}

// SetGain changes the gain applied to the next captured block.
func (r *Recorder) SetGain(gain float64) error {
	if err := r.gain.Store(gain); err != nil {
		return err
	}
	r.mu.Lock()
	cfg := *r.cfg.Load()
	cfg.Gain = gain
	r.cfg.Store(&cfg)
	r.mu.Unlock()
	r.log.Info("gain changed", logger.Float64("gain", gain))
	return nil
}

// Reconfigure changes the sample rate and buffer duration. The new values
// take effect at the next Start or Restart.
func (r *Recorder) Reconfigure(rate, duration int) error {
	if err := validateFormat(rate, duration); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := *r.cfg.Load()
	if cfg.SampleRate == rate && cfg.Duration == duration {
		return nil
	}
	cfg.SampleRate = rate
	cfg.Duration = duration
	r.cfg.Store(&cfg)
	if r.session.Load() == nil {
		r.nextRate.Store(int64(rate))
	}
	r.log.Info("capture format changed, applies on next start",
		logger.Int("sample_rate", rate),
		logger.Int("duration_seconds", duration))
	return nil
}

// Status returns a snapshot of the recorder state.
func (r *Recorder) Status() Status {
	st := Status{
		Running: r.running.Load(),
		State:   audiocore.StateStopped.String(),
		Gain:    r.gain.Load(),
	}

	s := r.session.Load()
	if s == nil {
		cfg := r.cfg.Load()
		st.SampleRate = cfg.SampleRate
		st.CapacitySamples = cfg.SampleRate * cfg.Duration
	} else {
		st.SampleRate = s.rate
		st.BufferedSamples = s.buffer.Len()
		st.CapacitySamples = s.buffer.Cap()
		st.State = s.loop.State().String()
		st.Device = s.loop.Device()
		st.ConsecutiveFailures = s.loop.ConsecutiveFailures()
	}
	st.Healthy = st.Running && s != nil && s.loop.Healthy()

	if st.SampleRate > 0 {
		st.BufferedSeconds = float64(st.BufferedSamples) / float64(st.SampleRate)
		st.CapacitySeconds = float64(st.CapacitySamples) / float64(st.SampleRate)
	}
	return st
}
