package xact

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const renderBlockFrames = 512

// RenderCue plays the named cue of sb for seconds and returns interleaved
// stereo samples at the engine's sample rate. The engine's device must render
// audio itself, as the software mixer does. sampleRate must match the
// engine.
func RenderCue(sb *SoundBank, name string, sampleRate int, seconds float64) ([]float32, error) {
	e := sb.engine
	if sampleRate != e.cfg.sampleRate {
		return nil, errors.Errorf("xact: render at %d Hz on an engine running at %d Hz", sampleRate, e.cfg.sampleRate)
	}
	if _, ok := e.device.(interface{ Process([]float32) }); !ok {
		return nil, errors.New("xact: device does not render audio")
	}
	if _, err := sb.PlayCue(name); err != nil {
		return nil, err
	}
	frames := int(float64(sampleRate) * seconds)
	out := make([]float32, frames*2)
	for pos := 0; pos < frames; pos += renderBlockFrames {
		end := pos + renderBlockFrames
		if end > frames {
			end = frames
		}
		if err := e.Render(out[pos*2 : end*2]); err != nil {
			return nil, err
		}
	}
	// Let voices that ended in the last block retire the cue.
	if err := e.Update(0); err != nil {
		return nil, err
	}
	return out, nil
}

// Output streams the engine to a realtime player. Each Process call renders
// through Render; Finished turns true once every cue has ended.
type Output struct {
	Engine *Engine
}

func (o Output) Process(dst []float32) {
	if err := o.Engine.Render(dst); err != nil {
		clear(dst)
	}
}

func (o Output) Finished() bool { return o.Engine.Idle() }

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*channels*4))
	binary.LittleEndian.PutUint16(out[32:], uint16(channels*4))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
