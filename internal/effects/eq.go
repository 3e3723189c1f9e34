package effects

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// EQBands is the number of MasterEQ bands: a low shelf, three peaks and a
// high shelf.
const EQBands = 5

var eqCenters = [EQBands]float64{200, 600, 1800, 5000, 8000}

const eqQ = 0.9

// MasterEQ is a five band equalizer for the master bus. Gains are in dB and
// may be changed from any goroutine; the audio thread picks them up on its
// next Process call.
type MasterEQ struct {
	sampleRate float64
	gains      [EQBands]atomic.Uint64 // float64 bits
	dirty      atomic.Bool
	left       *biquad.Chain
	right      *biquad.Chain
}

func NewMasterEQ(sampleRate int) *MasterEQ {
	eq := &MasterEQ{sampleRate: float64(sampleRate)}
	c := eq.coefficients()
	eq.left = biquad.NewChain(c)
	eq.right = biquad.NewChain(c)
	return eq
}

// SetGain sets band in dB, 0 is flat. Out of range bands are ignored.
func (eq *MasterEQ) SetGain(band int, gainDB float64) {
	if band < 0 || band >= EQBands || math.IsNaN(gainDB) {
		return
	}
	eq.gains[band].Store(math.Float64bits(gainDB))
	eq.dirty.Store(true)
}

func (eq *MasterEQ) Gain(band int) float64 {
	if band < 0 || band >= EQBands {
		return 0
	}
	return math.Float64frombits(eq.gains[band].Load())
}

func (eq *MasterEQ) coefficients() []biquad.Coefficients {
	nyquist := eq.sampleRate * 0.45
	c := make([]biquad.Coefficients, EQBands)
	for i, f := range eqCenters {
		f = math.Min(f, nyquist)
		g := eq.Gain(i)
		switch i {
		case 0:
			c[i] = design.LowShelf(f, g, eqQ, eq.sampleRate)
		case EQBands - 1:
			c[i] = design.HighShelf(f, g, eqQ, eq.sampleRate)
		default:
			c[i] = design.Peak(f, g, eqQ, eq.sampleRate)
		}
	}
	return c
}

func (eq *MasterEQ) Process(l, r float32) (float32, float32) {
	if eq.dirty.Swap(false) {
		c := eq.coefficients()
		eq.left.UpdateCoefficients(c, 1)
		eq.right.UpdateCoefficients(c, 1)
	}
	return float32(eq.left.ProcessSample(float64(l))), float32(eq.right.ProcessSample(float64(r)))
}

func (eq *MasterEQ) Reset() {
	eq.left.Reset()
	eq.right.Reset()
}
