package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/peekapi/peekapi/internal/audiocore"
)

// FakeSource is a scripted audiocore.DeviceSource. The first FailFirst
// Acquire calls fail with audiocore.ErrDeviceUnavailable, later calls open a
// stream built by NewStream.
type FakeSource struct {
	mu        sync.Mutex
	failFirst int
	attempts  int
	streams   []*FakeStream
	newStream func(n int) *FakeStream
}

// NewFakeSource creates a source that fails failFirst times and then opens
// streams from newStream. n counts successful acquisitions from zero. A nil
// newStream yields endless streams of 0.5 samples.
func NewFakeSource(failFirst int, newStream func(n int) *FakeStream) *FakeSource {
	if newStream == nil {
		newStream = func(n int) *FakeStream {
			return NewFakeStream(fmt.Sprintf("Fake Speakers %d", n), 0.5, -1)
		}
	}
	return &FakeSource{failFirst: failFirst, newStream: newStream}
}

// Acquire implements audiocore.DeviceSource.
func (s *FakeSource) Acquire(ctx context.Context, _ audiocore.Format) (audiocore.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.failFirst > 0 {
		s.failFirst--
		return nil, audiocore.DeviceUnavailable(fmt.Errorf("no default output device (attempt %d)", s.attempts))
	}

	stream := s.newStream(len(s.streams))
	s.streams = append(s.streams, stream)
	return stream, nil
}

// FailNext makes the next n Acquire calls fail.
func (s *FakeSource) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFirst = n
}

// Attempts returns the number of Acquire calls so far.
func (s *FakeSource) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Streams returns the streams opened so far.
func (s *FakeSource) Streams() []*FakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeStream(nil), s.streams...)
}

// Delivered returns the number of samples delivered by all streams.
func (s *FakeSource) Delivered() int {
	total := 0
	for _, st := range s.Streams() {
		total += st.Delivered()
	}
	return total
}

// FakeStream delivers constant-valued blocks. After Blocks pulls it reports
// audiocore.ErrDeviceLost, a negative Blocks never fails.
type FakeStream struct {
	name   string
	value  float32
	blocks int

	// Interval is the delay before each block, simulating device pacing.
	Interval time.Duration

	mu        sync.Mutex
	pulled    int
	delivered int
	closed    bool
	lost      bool
}

// NewFakeStream creates a stream that yields blocks of value.
func NewFakeStream(name string, value float32, blocks int) *FakeStream {
	return &FakeStream{name: name, value: value, blocks: blocks, Interval: time.Millisecond}
}

// Name implements audiocore.Stream.
func (f *FakeStream) Name() string { return f.name }

// Pull implements audiocore.Stream.
func (f *FakeStream) Pull(ctx context.Context, frames int) ([]float32, error) {
	if f.Interval > 0 {
		timer := time.NewTimer(f.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, audiocore.DeviceLost(fmt.Errorf("stream %q closed", f.name))
	}
	if f.lost || (f.blocks >= 0 && f.pulled >= f.blocks) {
		return nil, audiocore.DeviceLost(fmt.Errorf("device %q disconnected", f.name))
	}

	f.pulled++
	block := make([]float32, frames)
	for i := range block {
		block[i] = f.value
	}
	f.delivered += frames
	return block, nil
}

// Close implements audiocore.Stream.
func (f *FakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Disconnect makes the next Pull fail with audiocore.ErrDeviceLost.
func (f *FakeStream) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost = true
}

// Delivered returns the number of samples handed out.
func (f *FakeStream) Delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered
}

// Closed reports whether Close was called.
func (f *FakeStream) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
