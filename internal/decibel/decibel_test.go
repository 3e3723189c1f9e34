package decibel

import (
	"math"
	"testing"
)

func TestParseDecibelReferencePoint(t *testing.T) {
	if got := ParseDecibel(28240); math.Abs(got-8715) > 1e-9 {
		t.Fatalf("ParseDecibel(28240) = %v, want 8715", got)
	}
}

func TestAmplitudeRatioUnity(t *testing.T) {
	if got := CalculateAmplitudeRatio(0); got != 1.0 {
		t.Fatalf("CalculateAmplitudeRatio(0) = %v, want 1", got)
	}
	// 20 dB (x100) is a factor of ten.
	if got := CalculateAmplitudeRatio(2000); math.Abs(got-10) > 1e-9 {
		t.Fatalf("CalculateAmplitudeRatio(2000) = %v, want 10", got)
	}
}

func TestReverbRatioIsNotScaled(t *testing.T) {
	if got := CalculateReverbAmplitudeRatio(20); math.Abs(got-10) > 1e-9 {
		t.Fatalf("CalculateReverbAmplitudeRatio(20) = %v, want 10", got)
	}
	if got := CalculateReverbAmplitudeRatio(-6); math.Abs(got-CalculateAmplitudeRatio(-600)) > 1e-12 {
		t.Fatalf("reverb ratio for -6 dB = %v, want %v", got, CalculateAmplitudeRatio(-600))
	}
}

func TestParseDecibelZeroIsClamped(t *testing.T) {
	got := ParseDecibelByte(0)
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("ParseDecibelByte(0) = %v, want finite", got)
	}
	if got != ParseDecibelByte(1) {
		t.Fatalf("ParseDecibelByte(0) = %v, want same as byte 1 (%v)", got, ParseDecibelByte(1))
	}
	if g := ByteVolume(0); g <= 0 || math.IsNaN(g) {
		t.Fatalf("ByteVolume(0) = %v, want small positive gain", g)
	}
}

func TestParseDecibelMonotonic(t *testing.T) {
	prev := ParseDecibelByte(1)
	for b := 2; b <= 255; b++ {
		cur := ParseDecibelByte(byte(b))
		if cur <= prev {
			t.Fatalf("ParseDecibel not increasing at %d: %v <= %v", b, cur, prev)
		}
		prev = cur
	}
}

func TestAmplitudeRatioMonotonic(t *testing.T) {
	prev := CalculateAmplitudeRatio(-9600)
	for x := -9500.0; x <= 1200; x += 100 {
		cur := CalculateAmplitudeRatio(x)
		if cur <= prev {
			t.Fatalf("CalculateAmplitudeRatio not increasing at %v", x)
		}
		prev = cur
	}
}

func TestCentsToRatio(t *testing.T) {
	cases := []struct {
		cents float64
		want  float64
	}{
		{0, 1},
		{1200, 2},
		{-1200, 0.5},
	}
	for _, tc := range cases {
		if got := CentsToRatio(tc.cents); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("CentsToRatio(%v) = %v, want %v", tc.cents, got, tc.want)
		}
	}
}
