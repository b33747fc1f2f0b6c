// Package processors holds the sample transformations applied between the
// device stream and the sample buffer.
package processors

import (
	"math"
	"sync/atomic"

	"github.com/peekapi/peekapi/internal/errors"
)

const (
	maxSample = math.MaxInt16
	minSample = math.MinInt16
)

// DefaultGain is the factor used when none is configured. System output is
// usually quiet relative to full scale once mixed down.
const DefaultGain = 20.0

// Gain is a linear amplification factor that can be changed while the
// capture loop is running. The zero value is not usable, use NewGain.
type Gain struct {
	bits atomic.Uint64 // math.Float64bits of the factor
}

// NewGain creates a Gain holding factor.
func NewGain(factor float64) (*Gain, error) {
	if err := validateGain(factor); err != nil {
		return nil, err
	}
	g := &Gain{}
	g.bits.Store(math.Float64bits(factor))
	return g, nil
}

// Load returns the current factor.
func (g *Gain) Load() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Store replaces the factor. Invalid values are rejected and the previous
// factor stays in effect.
func (g *Gain) Store(factor float64) error {
	if err := validateGain(factor); err != nil {
		return err
	}
	g.bits.Store(math.Float64bits(factor))
	return nil
}

func validateGain(factor float64) error {
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor <= 0 {
		return errors.Newf("gain must be a finite value greater than 0, got %v", factor).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("gain", factor).
			Build()
	}
	return nil
}

// ApplyGain converts normalized float samples to int16 with gain applied:
// clamp(raw * gain * 32767, -32768, 32767), truncated toward zero. NaN input
// samples become silence. dst is reused when it has enough capacity. The
// second return value counts samples that hit the clamp.
func ApplyGain(dst []int16, src []float32, gain float64) ([]int16, int) {
	if cap(dst) < len(src) {
		dst = make([]int16, len(src))
	}
	dst = dst[:len(src)]

	scale := gain * maxSample
	clipped := 0
	for i, raw := range src {
		v := float64(raw) * scale
		switch {
		case math.IsNaN(v):
			dst[i] = 0
		case v > maxSample:
			dst[i] = maxSample
			clipped++
		case v < minSample:
			dst[i] = minSample
			clipped++
		default:
			dst[i] = int16(v) // conversion truncates toward zero
		}
	}
	return dst, clipped
}

// Peak returns the largest absolute sample value normalized to [0, 1].
func Peak(samples []int16) float64 {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / maxSample
}
