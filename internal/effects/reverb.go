package effects

import (
	"github.com/cwbudde/algo-dsp/dsp/effects/reverb"
	"github.com/pkg/errors"
)

// ReverbConfig shapes the reverb bus.
type ReverbConfig struct {
	RT60     float64 // seconds
	Damp     float64 // 0..1
	PreDelay float64 // seconds
}

func DefaultReverbConfig() ReverbConfig {
	return ReverbConfig{RT60: 1.8, Damp: 0.3, PreDelay: 0.01}
}

// Reverb is a send bus: its input is the sum of the voices' reverb sends and
// its output is fully wet. The feedback delay network is mono; the tail is
// written to both channels.
type Reverb struct {
	fdn *reverb.FDNReverb
}

func NewReverb(sampleRate int, cfg ReverbConfig) (*Reverb, error) {
	fdn, err := reverb.NewFDNReverb(float64(sampleRate))
	if err != nil {
		return nil, errors.Wrap(err, "reverb")
	}
	for _, set := range []func() error{
		func() error { return fdn.SetWet(1) },
		func() error { return fdn.SetDry(0) },
		func() error { return fdn.SetRT60(cfg.RT60) },
		func() error { return fdn.SetDamp(cfg.Damp) },
		func() error { return fdn.SetPreDelay(cfg.PreDelay) },
	} {
		if err := set(); err != nil {
			return nil, errors.Wrap(err, "reverb")
		}
	}
	return &Reverb{fdn: fdn}, nil
}

func (r *Reverb) Process(l, rr float32) (float32, float32) {
	out := float32(r.fdn.ProcessSample(float64(l+rr) * 0.5))
	return out, out
}

func (r *Reverb) Reset() { r.fdn.Reset() }
