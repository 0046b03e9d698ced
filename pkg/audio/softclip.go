package audio

import (
	"math"
	"sync/atomic"
)

const (
	// MinSaturation is the cubic coefficient for a saturation control of 0 (identity).
	MinSaturation = 0.0
	// MaxSaturation is the cubic coefficient for a saturation control of 1.
	MaxSaturation = 1.0 / 3.0

	fullScale = 32767.0
)

// Coefficient maps a 0..1 saturation control onto the soft clip coefficient
// by linear interpolation between MinSaturation and MaxSaturation.
func Coefficient(saturation float64) float64 {
	if saturation < 0 {
		saturation = 0
	} else if saturation > 1 {
		saturation = 1
	}
	return MinSaturation + (MaxSaturation-MinSaturation)*saturation
}

// SoftClip applies y = f - k*f^3 to a sample normalised by 32767 and scales
// the result back, rounding to the nearest integer. k = 0 is an exact
// identity; for k in [0, 1/3] the result never leaves the 16-bit range.
func SoftClip(sample int16, k float64) int16 {
	f := float64(sample) / fullScale
	y := f - k*f*f*f
	return toSample(math.Round(y * fullScale))
}

// ClampSum saturates a widened sum of two samples to the 16-bit range.
func ClampSum(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// MixOverdub sums live input on top of the loop that was just played and
// stores the result in live. Each live sample is soft clipped, added to the
// played sample, and the sum soft clipped again.
func MixOverdub(live, played *Block, k float64) {
	for i := range live.Data {
		summed := int32(SoftClip(live.Data[i], k)) + int32(played.Data[i])
		live.Data[i] = SoftClip(ClampSum(summed), k)
	}
}

// ClipBlock soft clips every sample of b in place.
func ClipBlock(b *Block, k float64) {
	for i := range b.Data {
		b.Data[i] = SoftClip(b.Data[i], k)
	}
}

func toSample(v float64) int16 {
	if v > math.MaxInt16 || v < math.MinInt16 {
		clippingOverflow(v)
		if v > 0 {
			return math.MaxInt16
		}
		return math.MinInt16
	}
	return int16(v)
}

// SoftClipper is a standalone saturation stage. The coefficient may be
// changed from any goroutine while Process runs on the real-time path.
type SoftClipper struct {
	k atomic.Uint64 // math.Float64bits of the coefficient
}

// NewSoftClipper returns a clipper with saturation 0 (pass-through).
func NewSoftClipper() *SoftClipper {
	return &SoftClipper{}
}

// SetSaturation sets the 0..1 saturation control.
func (c *SoftClipper) SetSaturation(saturation float64) {
	c.k.Store(math.Float64bits(Coefficient(saturation)))
}

// Coefficient returns the current cubic coefficient.
func (c *SoftClipper) Coefficient() float64 {
	return math.Float64frombits(c.k.Load())
}

// Process soft clips b in place.
func (c *SoftClipper) Process(b *Block) {
	if b == nil {
		return
	}
	ClipBlock(b, c.Coefficient())
}
