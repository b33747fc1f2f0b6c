package capture

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/peekapi/peekapi/internal/audiocore"
	"github.com/peekapi/peekapi/internal/audiocore/processors"
	"github.com/peekapi/peekapi/internal/logger"
	"github.com/peekapi/peekapi/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testFormat gives 100-sample blocks so tests stay small.
var testFormat = audiocore.Format{SampleRate: 1000, Channels: 1}

// recordingObserver captures loop events for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	states   []audiocore.State
	acquired []string
	failures []failureEvent
	samples  int
	clipped  int
}

type failureEvent struct {
	kind        audiocore.FailureKind
	consecutive int
	err         error
}

func (r *recordingObserver) StateChanged(s audiocore.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingObserver) DeviceAcquired(device string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquired = append(r.acquired, device)
}

func (r *recordingObserver) DeviceFailed(kind audiocore.FailureKind, consecutive int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failureEvent{kind: kind, consecutive: consecutive, err: err})
}

func (r *recordingObserver) BlockCaptured(samples, clipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples += samples
	r.clipped += clipped
}

func (r *recordingObserver) failureEvents() []failureEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]failureEvent(nil), r.failures...)
}

func (r *recordingObserver) stateHistory() []audiocore.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audiocore.State(nil), r.states...)
}

func (r *recordingObserver) capturedSamples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

type loopHarness struct {
	loop     *Loop
	buffer   *SampleBuffer
	observer *recordingObserver
	cancel   context.CancelFunc
	done     chan struct{}
}

func startLoop(t *testing.T, cfg LoopConfig, source audiocore.DeviceSource, gainFactor float64, opts ...LoopOption) *loopHarness {
	t.Helper()

	buffer, err := NewSampleBuffer(1 << 20)
	require.NoError(t, err)
	gain, err := processors.NewGain(gainFactor)
	require.NoError(t, err)

	if cfg.Format.SampleRate == 0 {
		cfg.Format = testFormat
	}

	obs := &recordingObserver{}
	opts = append([]LoopOption{WithLogger(logger.NewDiscard()), WithObserver(obs)}, opts...)
	loop, err := NewLoop(cfg, source, buffer, gain, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &loopHarness{loop: loop, buffer: buffer, observer: obs, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		assert.NoError(t, loop.Run(ctx))
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *loopHarness) stop() {
	h.cancel()
	<-h.done
}

func TestNewLoopValidation(t *testing.T) {
	t.Parallel()

	buffer, err := NewSampleBuffer(10)
	require.NoError(t, err)
	gain, err := processors.NewGain(1)
	require.NoError(t, err)
	source := testutil.NewFakeSource(0, nil)
	cfg := LoopConfig{Format: testFormat}

	_, err = NewLoop(cfg, nil, buffer, gain)
	require.Error(t, err)
	_, err = NewLoop(cfg, source, nil, gain)
	require.Error(t, err)
	_, err = NewLoop(cfg, source, buffer, nil)
	require.Error(t, err)
	_, err = NewLoop(LoopConfig{}, source, buffer, gain)
	require.Error(t, err)

	loop, err := NewLoop(cfg, source, buffer, gain)
	require.NoError(t, err)
	assert.Equal(t, DefaultFailureThreshold, loop.cfg.FailureThreshold)
	assert.Equal(t, audiocore.StateStopped, loop.State())
	assert.False(t, loop.Healthy())
}

func TestLoopRecoversAfterAcquireFailures(t *testing.T) {
	t.Parallel()

	source := testutil.NewFakeSource(3, nil)
	h := startLoop(t, LoopConfig{ReconnectDelay: 100 * time.Millisecond}, source, 1)

	// Unhealthy while the device is unavailable
	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		return source.Attempts() >= 2
	}, "loop did not retry acquisition")
	assert.False(t, h.loop.Healthy())
	assert.Equal(t, 0, h.buffer.Len())

	testutil.WaitFor(t, testutil.DefaultTestTimeout, h.loop.Healthy, "loop never became healthy")
	assert.Equal(t, 4, source.Attempts())
	assert.Equal(t, "Fake Speakers 0", h.loop.Device())
	assert.Equal(t, 0, h.loop.ConsecutiveFailures())

	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		return h.buffer.Len() >= 5*testFormat.BlockFrames()
	}, "no audio captured after recovery")

	h.stop()

	// Every pulled sample reached the buffer
	assert.Equal(t, source.Delivered(), h.buffer.Len())
	assert.Equal(t, source.Delivered(), h.observer.capturedSamples())

	failures := h.observer.failureEvents()
	require.Len(t, failures, 3)
	for i, f := range failures {
		assert.Equal(t, audiocore.FailureAcquire, f.kind)
		assert.Equal(t, i+1, f.consecutive)
		assert.ErrorIs(t, f.err, audiocore.ErrDeviceUnavailable)
	}

	states := h.observer.stateHistory()
	assert.Contains(t, states, audiocore.StateCooldown)
	assert.Equal(t, audiocore.StateStopped, states[len(states)-1])
	assert.False(t, h.loop.Healthy())
	assert.Empty(t, h.loop.Device())
}

func TestLoopReacquiresImmediatelyAfterStreamLoss(t *testing.T) {
	t.Parallel()

	source := testutil.NewFakeSource(0, func(n int) *testutil.FakeStream {
		if n == 0 {
			return testutil.NewFakeStream("Headphones", 0.25, 3)
		}
		return testutil.NewFakeStream("Speakers", 0.25, -1)
	})
	// A cooldown this long would fail the test, stream loss must skip it
	h := startLoop(t, LoopConfig{ReconnectDelay: time.Hour}, source, 1)

	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		return len(source.Streams()) == 2 && h.loop.Healthy()
	}, "loop did not reacquire after stream loss")
	assert.Equal(t, "Speakers", h.loop.Device())
	assert.True(t, source.Streams()[0].Closed())

	h.stop()

	failures := h.observer.failureEvents()
	require.Len(t, failures, 1)
	assert.Equal(t, audiocore.FailureStream, failures[0].kind)
	assert.Equal(t, 1, failures[0].consecutive)
	assert.ErrorIs(t, failures[0].err, audiocore.ErrDeviceLost)
	assert.NotContains(t, h.observer.stateHistory(), audiocore.StateCooldown)
	assert.Equal(t, source.Delivered(), h.buffer.Len())
}

func TestLoopBacksOffWhenStreamDiesBeforeFirstBlock(t *testing.T) {
	t.Parallel()

	source := testutil.NewFakeSource(1, func(n int) *testutil.FakeStream {
		if n == 0 {
			return testutil.NewFakeStream("Broken", 0.5, 0)
		}
		return testutil.NewFakeStream("Speakers", 0.5, -1)
	})
	h := startLoop(t, LoopConfig{ReconnectDelay: 10 * time.Millisecond}, source, 1)

	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		return len(source.Streams()) == 2 && h.loop.Healthy()
	}, "loop did not recover")
	h.stop()

	failures := h.observer.failureEvents()
	require.Len(t, failures, 2)
	assert.Equal(t, audiocore.FailureAcquire, failures[0].kind)
	assert.Equal(t, 1, failures[0].consecutive)
	// The dead stream continues the count instead of resetting it
	assert.Equal(t, audiocore.FailureStream, failures[1].kind)
	assert.Equal(t, 2, failures[1].consecutive)

	cooldowns := 0
	for _, s := range h.observer.stateHistory() {
		if s == audiocore.StateCooldown {
			cooldowns++
		}
	}
	assert.Equal(t, 2, cooldowns)
}

func TestLoopLogsErrorFromThreshold(t *testing.T) {
	t.Parallel()

	var logBuf bytes.Buffer
	log := logger.NewSlogLogger(&logBuf, logger.LogLevelDebug, time.UTC)

	source := testutil.NewFakeSource(6, nil)
	h := startLoop(t, LoopConfig{ReconnectDelay: time.Millisecond, FailureThreshold: 5}, source, 1, WithLogger(log))

	testutil.WaitFor(t, testutil.DefaultTestTimeout, h.loop.Healthy, "loop never became healthy")
	h.stop()

	out := logBuf.String()
	assert.Equal(t, 4, strings.Count(out, "audio device failure"))
	assert.Equal(t, 2, strings.Count(out, "audio device keeps failing"))
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "previous_failures=6")
}

func TestLoopAppliesGain(t *testing.T) {
	t.Parallel()

	source := testutil.NewFakeSource(0, func(int) *testutil.FakeStream {
		return testutil.NewFakeStream("Speakers", 0.5, -1)
	})
	h := startLoop(t, LoopConfig{}, source, 20)

	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		return h.buffer.Len() >= testFormat.BlockFrames()
	}, "no audio captured")
	h.stop()

	for _, s := range h.buffer.Snapshot() {
		require.Equal(t, int16(32767), s)
	}
	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	assert.Equal(t, h.observer.samples, h.observer.clipped)
}

func TestLoopGainChangeTakesEffect(t *testing.T) {
	t.Parallel()

	buffer, err := NewSampleBuffer(testFormat.BlockFrames())
	require.NoError(t, err)
	gain, err := processors.NewGain(1)
	require.NoError(t, err)

	source := testutil.NewFakeSource(0, nil)
	loop, err := NewLoop(LoopConfig{Format: testFormat}, source, buffer, gain, WithLogger(logger.NewDiscard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		snap := buffer.Snapshot()
		return len(snap) > 0 && snap[len(snap)-1] == 16383
	}, "unity gain not applied")

	require.NoError(t, gain.Store(2))
	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		snap := buffer.Snapshot()
		return len(snap) > 0 && snap[len(snap)-1] == 32767
	}, "new gain not applied")
}

func TestLoopStopsDuringCooldown(t *testing.T) {
	t.Parallel()

	source := testutil.NewFakeSource(1_000_000, nil)
	h := startLoop(t, LoopConfig{ReconnectDelay: time.Hour}, source, 1)

	testutil.WaitFor(t, testutil.DefaultTestTimeout, func() bool {
		return h.loop.State() == audiocore.StateCooldown
	}, "loop never entered cooldown")

	h.cancel()
	testutil.WaitForChannel(t, h.done, testutil.ShortTestTimeout, "loop did not stop during cooldown")
	assert.Equal(t, audiocore.StateStopped, h.loop.State())
	assert.Equal(t, 1, source.Attempts())
}

func TestLoopRunRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	source := testutil.NewFakeSource(0, nil)
	h := startLoop(t, LoopConfig{}, source, 1)

	testutil.WaitFor(t, testutil.DefaultTestTimeout, h.loop.Healthy, "loop never became healthy")
	require.Error(t, h.loop.Run(context.Background()))
}
