// Package capture implements the loopback capture loop and its sample buffer.
package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/peekapi/peekapi/internal/audiocore"
	"github.com/peekapi/peekapi/internal/audiocore/processors"
	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
)

const (
	// DefaultReconnectDelay is the cooldown after a failed acquisition.
	DefaultReconnectDelay = 2 * time.Second
	// DefaultFailureThreshold is the consecutive failure count from which
	// failures are logged at error level.
	DefaultFailureThreshold = 5
)

// LoopConfig holds the capture loop parameters.
type LoopConfig struct {
	Format           audiocore.Format
	ReconnectDelay   time.Duration
	FailureThreshold int
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(log logger.Logger) LoopOption {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o audiocore.Observer) LoopOption {
	return func(l *Loop) {
		if o != nil {
			l.observer = o
		}
	}
}

// Loop owns the device lifecycle: it acquires a loopback stream, pulls
// blocks into the sample buffer and reacquires the device after any
// failure, until its context is cancelled. Device errors never escape Run.
type Loop struct {
	cfg      LoopConfig
	source   audiocore.DeviceSource
	buffer   *SampleBuffer
	gain     *processors.Gain
	log      logger.Logger
	observer audiocore.Observer

	state    atomic.Int32
	healthy  atomic.Bool
	running  atomic.Bool
	failures atomic.Int64
	device   atomic.Pointer[string]

	// scratch is reused for every block, only touched by the Run goroutine
	scratch []int16
}

// NewLoop creates a capture loop writing into buffer.
func NewLoop(cfg LoopConfig, source audiocore.DeviceSource, buffer *SampleBuffer, gain *processors.Gain, opts ...LoopOption) (*Loop, error) {
	switch {
	case source == nil:
		return nil, errors.Newf("capture loop requires a device source").
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	case buffer == nil:
		return nil, errors.Newf("capture loop requires a sample buffer").
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	case gain == nil:
		return nil, errors.Newf("capture loop requires a gain").
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	case cfg.Format.SampleRate <= 0:
		return nil, errors.Newf("invalid capture sample rate: %d", cfg.Format.SampleRate).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("sample_rate", cfg.Format.SampleRate).
			Build()
	}

	if cfg.Format.Channels <= 0 {
		cfg.Format.Channels = 1
	}
	if cfg.ReconnectDelay < 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}

	l := &Loop{
		cfg:      cfg,
		source:   source,
		buffer:   buffer,
		gain:     gain,
		log:      logger.Global().Module("capture"),
		observer: audiocore.NopObserver{},
		scratch:  make([]int16, 0, cfg.Format.BlockFrames()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run captures until ctx is cancelled. It returns nil on cancellation and an
// error only when the loop is already running.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.Newf("capture loop already running").
			Component("audiocore").
			Category(errors.CategoryState).
			Build()
	}
	defer func() {
		l.healthy.Store(false)
		l.device.Store(nil)
		l.setState(audiocore.StateStopped)
		l.running.Store(false)
	}()

	l.log.Info("capture loop started",
		logger.Int("sample_rate", l.cfg.Format.SampleRate),
		logger.Int("block_frames", l.cfg.Format.BlockFrames()),
		logger.Int("buffer_samples", l.buffer.Cap()))

	for ctx.Err() == nil {
		l.setState(audiocore.StateAcquiring)
		stream, err := l.source.Acquire(ctx, l.cfg.Format)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			l.recordFailure(audiocore.FailureAcquire, err)
			if !l.cooldown(ctx) {
				break
			}
			continue
		}

		prior := int(l.failures.Swap(0))
		name := stream.Name()
		l.device.Store(&name)
		l.healthy.Store(true)
		l.log.Info("audio device acquired",
			logger.String("device", name),
			logger.Int("previous_failures", prior))
		l.observer.DeviceAcquired(name)
		l.setState(audiocore.StateStreaming)

		delivered, err := l.stream(ctx, stream)
		if cerr := stream.Close(); cerr != nil {
			l.log.Debug("closing audio stream failed",
				logger.String("device", name),
				logger.Error(cerr))
		}
		l.device.Store(nil)

		if err == nil || ctx.Err() != nil {
			break
		}

		if delivered > 0 {
			// A working device went away, reacquire right away
			l.recordFailure(audiocore.FailureStream, err)
			continue
		}

		// Opened but never produced audio, treat like a failed acquisition
		l.failures.Store(int64(prior))
		l.recordFailure(audiocore.FailureStream, err)
		if !l.cooldown(ctx) {
			break
		}
	}

	l.log.Info("capture loop stopped")
	return nil
}

// stream pulls blocks until an error occurs. It returns nil only when ctx is
// cancelled.
func (l *Loop) stream(ctx context.Context, stream audiocore.Stream) (int, error) {
	frames := l.cfg.Format.BlockFrames()
	delivered := 0

	for {
		raw, err := stream.Pull(ctx, frames)
		if err != nil {
			if ctx.Err() != nil {
				return delivered, nil
			}
			return delivered, err
		}
		if len(raw) == 0 {
			continue
		}

		var clipped int
		l.scratch, clipped = processors.ApplyGain(l.scratch, raw, l.gain.Load())
		l.buffer.Append(l.scratch)
		delivered++

		l.observer.BlockCaptured(len(raw), clipped)
		l.log.Trace("block captured",
			logger.Int("samples", len(raw)),
			logger.Int("clipped", clipped),
			logger.Float64("peak", processors.Peak(l.scratch)))
	}
}

func (l *Loop) recordFailure(kind audiocore.FailureKind, err error) {
	consecutive := int(l.failures.Add(1))
	l.healthy.Store(false)

	fields := []logger.Field{
		logger.String("kind", string(kind)),
		logger.Int("consecutive_failures", consecutive),
		logger.Error(err),
	}
	if consecutive >= l.cfg.FailureThreshold {
		if consecutive == l.cfg.FailureThreshold {
			// Report the outage once, not every retry
			_ = errors.New(err).
				Component("audiocore").
				Category(errors.CategoryAudioDevice).
				Priority(errors.PriorityHigh).
				Context("operation", "acquire_loopback_device").
				Context("failure_kind", string(kind)).
				Context("consecutive_failures", consecutive).
				Build()
		}
		l.log.Error("audio device keeps failing", fields...)
	} else {
		l.log.Warn("audio device failure", fields...)
	}

	l.observer.DeviceFailed(kind, consecutive, err)
}

// cooldown waits ReconnectDelay. It returns false when ctx ended first.
func (l *Loop) cooldown(ctx context.Context) bool {
	l.setState(audiocore.StateCooldown)
	if l.cfg.ReconnectDelay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(l.cfg.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (l *Loop) setState(s audiocore.State) {
	if audiocore.State(l.state.Swap(int32(s))) != s {
		l.observer.StateChanged(s)
	}
}

// State returns the current loop state.
func (l *Loop) State() audiocore.State {
	return audiocore.State(l.state.Load())
}

// Healthy reports whether a device is currently acquired and no failure has
// happened since. Eventually consistent with the loop.
func (l *Loop) Healthy() bool {
	return l.healthy.Load()
}

// Device returns the name of the acquired device, or "" when there is none.
func (l *Loop) Device() string {
	if name := l.device.Load(); name != nil {
		return *name
	}
	return ""
}

// ConsecutiveFailures returns the failure count since the last acquisition.
func (l *Loop) ConsecutiveFailures() int {
	return int(l.failures.Load())
}

// Buffer returns the buffer the loop writes into.
func (l *Loop) Buffer() *SampleBuffer {
	return l.buffer
}
