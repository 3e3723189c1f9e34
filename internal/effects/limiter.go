package effects

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
)

// Limiter is a stereo-linked compressor for the master bus. Many voices
// summed at unity gain can exceed full scale; the limiter pulls peaks above
// the threshold down by ratio.
type Limiter struct {
	threshold float64
	ratio     float64
	attack    float64 // coefficient
	release   float64 // coefficient
	env       float64
}

// NewLimiter builds a limiter. thresholdDB is in plain dB (e.g. -1).
func NewLimiter(sampleRate int, thresholdDB, ratio, attackMs, releaseMs float64) *Limiter {
	sr := float64(sampleRate)
	if ratio < 1 {
		ratio = 1
	}
	return &Limiter{
		threshold: core.DBToLinear(thresholdDB),
		ratio:     ratio,
		attack:    1 - math.Exp(-1/(math.Max(attackMs, 0.01)*sr/1000)),
		release:   1 - math.Exp(-1/(math.Max(releaseMs, 0.01)*sr/1000)),
	}
}

// DefaultLimiter holds peaks near -1 dBFS.
func DefaultLimiter(sampleRate int) *Limiter {
	return NewLimiter(sampleRate, -1, 20, 0.5, 80)
}

func (c *Limiter) Process(l, r float32) (float32, float32) {
	peak := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	g := float32(c.gain())
	return l * g, r * g
}

func (c *Limiter) gain() float64 {
	if c.env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	over := c.env / c.threshold
	return math.Pow(over, 1/c.ratio-1)
}

func (c *Limiter) Reset() { c.env = 0 }
