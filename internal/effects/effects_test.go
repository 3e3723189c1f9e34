package effects

import (
	"math"
	"testing"
)

func TestReverbProducesTail(t *testing.T) {
	r, err := NewReverb(44100, DefaultReverbConfig())
	if err != nil {
		t.Fatalf("reverb failed: %v", err)
	}
	r.Process(1.0, 1.0)
	var maxOut float32
	for i := 0; i < 10000; i++ {
		l, rr := r.Process(0, 0)
		if l != rr {
			t.Fatalf("mono tail expected on both channels, got %f/%f", l, rr)
		}
		if a := float32(math.Abs(float64(l))); a > maxOut {
			maxOut = a
		}
	}
	if maxOut < 1e-4 {
		t.Fatalf("expected reverb tail, max %g", maxOut)
	}
	r.Reset()
	for i := 0; i < 100; i++ {
		if l, _ := r.Process(0, 0); l != 0 {
			t.Fatalf("expected silence after reset, got %f", l)
		}
	}
}

func TestReverbRejectsBadConfig(t *testing.T) {
	if _, err := NewReverb(44100, ReverbConfig{RT60: 0, Damp: 0.3}); err == nil {
		t.Fatalf("expected error for zero RT60")
	}
	if _, err := NewReverb(0, DefaultReverbConfig()); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestLimiterHoldsPeaks(t *testing.T) {
	c := DefaultLimiter(44100)
	var out float32
	for i := 0; i < 2000; i++ {
		out, _ = c.Process(2.0, 2.0)
	}
	if out >= 2.0*0.5 {
		t.Fatalf("limiter should pull a +6 dB signal down, got %f", out)
	}
	c.Reset()
	l, r := c.Process(0.1, -0.1)
	if l != 0.1 || r != -0.1 {
		t.Fatalf("quiet signal should pass unchanged, got %f/%f", l, r)
	}
}

func TestMasterEQShelvesLowBand(t *testing.T) {
	eq := NewMasterEQ(48000)
	settle := func() float32 {
		var out float32
		for i := 0; i < 20000; i++ {
			out, _ = eq.Process(0.1, 0.1)
		}
		return out
	}
	if flat := settle(); math.Abs(float64(flat)-0.1) > 1e-3 {
		t.Fatalf("flat EQ should pass DC, got %f", flat)
	}
	eq.SetGain(0, 12)
	if eq.Gain(0) != 12 {
		t.Fatalf("gain = %v, want 12", eq.Gain(0))
	}
	want := 0.1 * math.Pow(10, 12.0/20)
	if boosted := settle(); math.Abs(float64(boosted)-want) > 5e-3 {
		t.Fatalf("low shelf +12 dB should lift DC to %f, got %f", want, boosted)
	}
	eq.SetGain(9, 6)
	if eq.Gain(9) != 0 {
		t.Fatalf("out of range band must be ignored")
	}
}

type scale float32

func (s scale) Process(l, r float32) (float32, float32) { return l * float32(s), r * float32(s) }
func (s scale) Reset()                                  {}

type offset float32

func (o offset) Process(l, r float32) (float32, float32) { return l + float32(o), r + float32(o) }
func (o offset) Reset()                                   {}

func TestChainAppliesEffectsInOrder(t *testing.T) {
	c := NewChain(scale(2), offset(1))
	if l, _ := c.Process(1, 1); l != 3 {
		t.Fatalf("expected (1*2)+1 = 3, got %f", l)
	}
	buf := []float32{1, 2, 3, 4}
	c.ProcessInterleaved(buf)
	want := []float32{3, 5, 7, 9}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("interleaved = %v, want %v", buf, want)
		}
	}
	var empty Chain
	empty.ProcessInterleaved(buf)
	if buf[0] != 3 || empty.Len() != 0 {
		t.Fatalf("empty chain must pass through")
	}
}
