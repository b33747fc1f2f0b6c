// Package audiocore defines the contracts of the loopback capture engine.
//
// Architecture overview:
//
//	DeviceSource -> Stream -> capture.Loop -> capture.SampleBuffer -> export.EncodeWAV
//
// A DeviceSource opens a Stream on the current default output device. The
// capture loop pulls normalized float blocks from the stream, applies gain and
// appends int16 samples to a ring buffer that readers snapshot on demand.
// Device failures are expressed as ErrDeviceUnavailable and ErrDeviceLost and
// are absorbed by the loop, which reacquires the device.
package audiocore

import (
	"context"
	"time"
)

// Format describes the PCM stream requested from a device.
type Format struct {
	SampleRate int // Hz
	Channels   int // always 1 for snapshots
}

// BlockFrames returns the frame count of one capture block, about 100ms of audio.
func (f Format) BlockFrames() int {
	frames := f.SampleRate / 10
	if frames < 1 {
		return 1
	}
	return frames
}

// BlockDuration returns the nominal duration of one capture block.
func (f Format) BlockDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.BlockFrames()) * time.Second / time.Duration(f.SampleRate)
}

// DeviceSource opens loopback streams on the system's current default output.
type DeviceSource interface {
	// Acquire queries the current default output device and opens a loopback
	// stream on it. Errors wrap ErrDeviceUnavailable. Callers must not retry inline.
	Acquire(ctx context.Context, format Format) (Stream, error)
}

// Stream is an open loopback capture on one device.
type Stream interface {
	// Name returns the human-readable device name.
	Name() string

	// Pull blocks until about frames normalized samples in [-1, 1] are
	// available and returns them. It may return an empty slice. Errors wrap
	// ErrDeviceLost, or are ctx.Err() when the context is cancelled.
	Pull(ctx context.Context, frames int) ([]float32, error)

	// Close releases the device. Safe to call more than once.
	Close() error
}

// DeviceInfo describes an output device usable for loopback capture.
type DeviceInfo struct {
	Index   int
	Name    string
	ID      string
	Default bool
}
