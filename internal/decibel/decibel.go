// Package decibel converts the XACT byte-encoded volume and pitch units into
// linear gain and frequency ratios.
package decibel

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
)

// The encoder curve was fit against authored content: 3969*log10(v/28240)+8715.
const (
	curveScale     = 3969.0
	curveReference = 28240.0
	curveOffset    = 8715.0
)

// ParseDecibel maps an encoded volume value onto decibels x 100.
// Values below 1 are clamped to 1 so the result never reaches -Inf.
func ParseDecibel(value float64) float64 {
	if value < 1 || math.IsNaN(value) {
		value = 1
	}
	return curveScale*math.Log10(value/curveReference) + curveOffset
}

// ParseDecibelByte is ParseDecibel for a raw volume byte.
func ParseDecibelByte(b byte) float64 {
	return ParseDecibel(float64(b))
}

// CalculateAmplitudeRatio converts decibels x 100 into a linear gain.
func CalculateAmplitudeRatio(decibelTimes100 float64) float64 {
	return math.Pow(10, decibelTimes100/2000)
}

// CalculateReverbAmplitudeRatio converts plain decibels into a linear gain.
// Reverb sends are authored in dB, not dB x 100.
func CalculateReverbAmplitudeRatio(decibels float64) float64 {
	return core.DBToLinear(decibels)
}

// CentsToRatio converts a pitch offset in cents (1/100 semitone) into a
// playback frequency ratio. +1200 doubles the frequency.
func CentsToRatio(cents float64) float64 {
	return math.Pow(2, cents/1200)
}

// ByteVolume returns the linear gain for an encoded volume byte.
func ByteVolume(b byte) float64 {
	return CalculateAmplitudeRatio(ParseDecibelByte(b))
}
