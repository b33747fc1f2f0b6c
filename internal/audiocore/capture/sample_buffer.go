package capture

import (
	"sync"

	"github.com/peekapi/peekapi/internal/errors"
)

// SampleBuffer is a fixed-capacity ring of int16 samples that always holds the
// most recent samples appended to it. One writer and any number of readers
// may use it concurrently.
type SampleBuffer struct {
	mu    sync.RWMutex
	data  []int16
	head  int // index of the oldest sample
	count int // number of valid samples, at most len(data)
}

// NewSampleBuffer creates an empty buffer holding up to capacity samples.
func NewSampleBuffer(capacity int) (*SampleBuffer, error) {
	if capacity <= 0 {
		return nil, errors.Newf("invalid sample buffer capacity: %d", capacity).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}

	return &SampleBuffer{
		data: make([]int16, capacity),
	}, nil
}

// Append adds samples at the tail, evicting the oldest samples once the buffer
// is full. When len(samples) exceeds the capacity only the last Cap() samples
// are kept.
func (b *SampleBuffer) Append(samples []int16) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.data)
	if len(samples) >= capacity {
		copy(b.data, samples[len(samples)-capacity:])
		b.head = 0
		b.count = capacity
		return
	}

	// Write position is one past the newest sample
	tail := (b.head + b.count) % capacity
	n := copy(b.data[tail:], samples)
	if n < len(samples) {
		copy(b.data, samples[n:])
	}

	b.count += len(samples)
	if b.count > capacity {
		overflow := b.count - capacity
		b.head = (b.head + overflow) % capacity
		b.count = capacity
	}
}

// Snapshot returns a copy of the buffered samples ordered oldest first. The
// result is never nil and does not alias the buffer's storage.
func (b *SampleBuffer) Snapshot() []int16 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]int16, b.count)
	n := copy(out, b.data[b.head:min(b.head+b.count, len(b.data))])
	if n < b.count {
		copy(out[n:], b.data[:b.count-n])
	}
	return out
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the fixed capacity in samples.
func (b *SampleBuffer) Cap() int {
	return len(b.data)
}

// Reset discards all buffered samples.
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}
