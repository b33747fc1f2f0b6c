// Package malgo provides a malgo-based loopback DeviceSource that captures
// whatever the system's default output device is playing.
package malgo

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/peekapi/peekapi/internal/audiocore"
	"github.com/peekapi/peekapi/internal/logger"
)

const (
	// chunkQueueSize bounds the callback chunks waiting for Pull
	chunkQueueSize = 64
	// minPullTimeout keeps Pull from spinning at very high sample rates
	minPullTimeout = 50 * time.Millisecond
)

// Config configures the loopback source.
type Config struct {
	// Device selects an output device by name or ID. Empty follows the
	// system default output.
	Device string
}

// LoopbackSource implements audiocore.DeviceSource using miniaudio.
type LoopbackSource struct {
	device atomic.Pointer[string]
	log    logger.Logger
	goos   string
}

// NewLoopbackSource creates a loopback source. log may be nil.
func NewLoopbackSource(config Config, log logger.Logger) *LoopbackSource {
	if log == nil {
		log = logger.Global().Module("audiocore.malgo")
	}
	s := &LoopbackSource{log: log, goos: runtime.GOOS}
	s.SetDevice(config.Device)
	return s
}

// SetDevice changes the preferred device. It applies to the next acquisition.
func (s *LoopbackSource) SetDevice(name string) {
	s.device.Store(&name)
}

// Device returns the preferred device, "" for the system default output.
func (s *LoopbackSource) Device() string {
	return *s.device.Load()
}

// Acquire opens a loopback stream on the current default output device.
func (s *LoopbackSource) Acquire(ctx context.Context, format audiocore.Format) (audiocore.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan, err := planForOS(s.goos)
	if err != nil {
		return nil, audiocore.DeviceUnavailable(err)
	}

	malgoCtx, err := malgo.InitContext(plan.backends, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, audiocore.DeviceUnavailable(fmt.Errorf("init audio context: %w", err))
	}
	releaseCtx := func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}

	infos, err := malgoCtx.Devices(plan.listKind)
	if err != nil {
		releaseCtx()
		return nil, audiocore.DeviceUnavailable(fmt.Errorf("enumerate devices: %w", err))
	}

	preferred := s.Device()
	entry, err := selectDevice(loopbackEntries(infos, plan), preferred)
	if err != nil {
		releaseCtx()
		return nil, audiocore.DeviceUnavailable(err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(plan.deviceType)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	// WASAPI loopback with a nil device ID follows the default output,
	// including default device changes
	if plan.deviceType != malgo.Loopback || preferred != "" {
		deviceConfig.Capture.DeviceID = infos[entry.index].ID.Pointer()
	}

	stream := newLoopbackStream(entry.Name, format, s.log)
	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: stream.onData,
		Stop: stream.onStop,
	})
	if err != nil {
		releaseCtx()
		return nil, audiocore.DeviceUnavailable(fmt.Errorf("init loopback device %q: %w", entry.Name, err))
	}

	stream.sourceFormat = device.CaptureFormat()
	if err := device.Start(); err != nil {
		device.Uninit()
		releaseCtx()
		return nil, audiocore.DeviceUnavailable(fmt.Errorf("start loopback device %q: %w", entry.Name, err))
	}

	stream.release = func() {
		_ = device.Stop()
		device.Uninit()
		releaseCtx()
	}

	s.log.Debug("loopback stream opened",
		logger.String("device", entry.Name),
		logger.Int("requested_rate", format.SampleRate),
		logger.Int("device_rate", int(device.SampleRate())),
		logger.String("device_format", formatName(stream.sourceFormat)))

	return stream, nil
}

func formatName(f malgo.FormatType) string {
	_, name := GetFormatInfo(f)
	return name
}

// loopbackStream bridges miniaudio's callback thread to blocking Pull calls.
type loopbackStream struct {
	name         string
	sourceFormat malgo.FormatType
	log          logger.Logger
	pullTimeout  time.Duration

	chunks  chan []float32
	lost    chan struct{}
	dropped atomic.Uint64

	lostOnce  sync.Once
	closeOnce sync.Once
	closing   atomic.Bool
	release   func()

	// pending holds samples received but not yet returned, Pull goroutine only
	pending []float32
}

func newLoopbackStream(name string, format audiocore.Format, log logger.Logger) *loopbackStream {
	return &loopbackStream{
		name:         name,
		sourceFormat: malgo.FormatF32,
		log:          log,
		pullTimeout:  max(2*format.BlockDuration(), minPullTimeout),
		chunks:       make(chan []float32, chunkQueueSize),
		lost:         make(chan struct{}),
	}
}

// onData runs on the audio thread and must not block.
func (st *loopbackStream) onData(_, input []byte, _ uint32) {
	if st.closing.Load() || len(input) == 0 {
		return
	}

	// input is backend memory, the conversion copies it
	samples, err := ConvertToFloat32(input, st.sourceFormat, nil)
	if err != nil {
		st.markLost()
		return
	}

	select {
	case st.chunks <- samples:
	default:
		st.dropped.Add(1)
	}
}

// onStop fires when the backend stops the device on its own, for example on
// unplug or sleep.
func (st *loopbackStream) onStop() {
	if st.closing.Load() {
		return
	}
	st.markLost()
}

func (st *loopbackStream) markLost() {
	st.lostOnce.Do(func() { close(st.lost) })
}

// Name implements audiocore.Stream.
func (st *loopbackStream) Name() string {
	return st.name
}

// Pull implements audiocore.Stream. It returns exactly frames samples when
// the device keeps up and whatever arrived when the wait times out, which
// may be nothing while the output is idle.
func (st *loopbackStream) Pull(ctx context.Context, frames int) ([]float32, error) {
	if frames <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(st.pullTimeout)
	defer timer.Stop()

	for len(st.pending) < frames {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-st.lost:
			return nil, audiocore.DeviceLost(fmt.Errorf("device %q stopped", st.name))
		case chunk := <-st.chunks:
			st.pending = append(st.pending, chunk...)
		case <-timer.C:
			return st.take(len(st.pending)), nil
		}
	}

	if n := st.dropped.Swap(0); n > 0 {
		st.log.Warn("audio chunks dropped, capture loop falling behind",
			logger.String("device", st.name),
			logger.Uint64("chunks", n))
	}
	return st.take(frames), nil
}

// take removes and returns the first n pending samples.
func (st *loopbackStream) take(n int) []float32 {
	if n == 0 {
		return []float32{}
	}
	out := make([]float32, n)
	copy(out, st.pending[:n])
	rest := copy(st.pending, st.pending[n:])
	st.pending = st.pending[:rest]
	return out
}

// Close implements audiocore.Stream.
func (st *loopbackStream) Close() error {
	st.closeOnce.Do(func() {
		st.closing.Store(true)
		if st.release != nil {
			st.release()
		}
	})
	return nil
}
