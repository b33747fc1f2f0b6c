package capture

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleBuffer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		capacity  int
		wantError bool
	}{
		{name: "valid capacity", capacity: 441000, wantError: false},
		{name: "single sample", capacity: 1, wantError: false},
		{name: "zero capacity", capacity: 0, wantError: true},
		{name: "negative capacity", capacity: -5, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf, err := NewSampleBuffer(tt.capacity)
			if tt.wantError {
				require.Error(t, err)
				assert.Nil(t, buf)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.capacity, buf.Cap())
			assert.Equal(t, 0, buf.Len())
		})
	}
}

func TestSampleBuffer_EmptySnapshot(t *testing.T) {
	t.Parallel()

	buf, err := NewSampleBuffer(8)
	require.NoError(t, err)

	snap := buf.Snapshot()
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
}

func TestSampleBuffer_EvictsOldest(t *testing.T) {
	t.Parallel()

	buf, err := NewSampleBuffer(5)
	require.NoError(t, err)

	buf.Append([]int16{1, 2, 3})
	assert.Equal(t, []int16{1, 2, 3}, buf.Snapshot())

	buf.Append([]int16{4, 5, 6})
	assert.Equal(t, []int16{2, 3, 4, 5, 6}, buf.Snapshot())
	assert.Equal(t, 5, buf.Len())
}

func TestSampleBuffer_OversizedAppend(t *testing.T) {
	t.Parallel()

	buf, err := NewSampleBuffer(4)
	require.NoError(t, err)

	buf.Append([]int16{9})
	buf.Append([]int16{1, 2, 3, 4, 5, 6, 7})
	assert.Equal(t, []int16{4, 5, 6, 7}, buf.Snapshot())

	buf.Append([]int16{8})
	assert.Equal(t, []int16{5, 6, 7, 8}, buf.Snapshot())
}

func TestSampleBuffer_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	buf, err := NewSampleBuffer(3)
	require.NoError(t, err)

	buf.Append([]int16{1, 2, 3})
	snap := buf.Snapshot()
	snap[0] = 100

	assert.Equal(t, []int16{1, 2, 3}, buf.Snapshot())
}

func TestSampleBuffer_Reset(t *testing.T) {
	t.Parallel()

	buf, err := NewSampleBuffer(3)
	require.NoError(t, err)

	buf.Append([]int16{1, 2})
	buf.Reset()
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Snapshot())

	buf.Append([]int16{7})
	assert.Equal(t, []int16{7}, buf.Snapshot())
}

// TestSampleBuffer_MatchesModel checks random append sequences against the
// obvious model: concatenate everything and keep the last capacity samples.
func TestSampleBuffer_MatchesModel(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))

	for _, capacity := range []int{1, 2, 5, 16, 97} {
		buf, err := NewSampleBuffer(capacity)
		require.NoError(t, err)

		var model []int16
		next := int16(0)

		for range 200 {
			chunk := make([]int16, rng.IntN(2*capacity+2))
			for i := range chunk {
				chunk[i] = next
				next++
			}
			buf.Append(chunk)

			model = append(model, chunk...)
			if len(model) > capacity {
				model = model[len(model)-capacity:]
			}

			snap := buf.Snapshot()
			require.Len(t, snap, min(len(model), capacity))
			require.Equal(t, len(model), buf.Len())
			if len(model) > 0 {
				require.Equal(t, model, snap, "capacity %d", capacity)
			}
		}
	}
}

func TestSampleBuffer_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	const capacity = 1000
	buf, err := NewSampleBuffer(capacity)
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		block := make([]int16, 37)
		v := int16(0)
		for range 2000 {
			for i := range block {
				block[i] = v
				v++
			}
			buf.Append(block)
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := buf.Snapshot()
				assert.LessOrEqual(t, len(snap), capacity)
				// Samples are consecutive, a torn read would break the sequence
				for i := 1; i < len(snap); i++ {
					if snap[i] != snap[i-1]+1 {
						t.Errorf("snapshot not contiguous at %d: %d after %d", i, snap[i], snap[i-1])
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, capacity, buf.Len())
}
