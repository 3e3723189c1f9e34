// Package cuedatatest builds sound entries for tests. The package-level
// helpers write little-endian data; BigEndian writes byte-swapped entries.
package cuedatatest

import (
	"encoding/binary"
	"math"

	"github.com/cbegin/xact-go/internal/cuedata"
)

// Builder appends fields in its byte order, little-endian by default.
type Builder struct {
	order binary.ByteOrder
	buf   []byte
}

func NewBuilder(order binary.ByteOrder) *Builder {
	return &Builder{order: order}
}

func (b *Builder) byteOrder() binary.ByteOrder {
	if b.order == nil {
		return binary.LittleEndian
	}
	return b.order
}

func (b *Builder) U8(v uint8) *Builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *Builder) U16(v uint16) *Builder {
	var tmp [2]byte
	b.byteOrder().PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *Builder) I16(v int16) *Builder { return b.U16(uint16(v)) }

func (b *Builder) U32(v uint32) *Builder {
	var tmp [4]byte
	b.byteOrder().PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *Builder) I32(v int32) *Builder { return b.U32(uint32(v)) }

func (b *Builder) F32(v float32) *Builder { return b.U32(math.Float32bits(v)) }

func (b *Builder) Raw(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

func (b *Builder) Len() int { return len(b.buf) }

func (b *Builder) Bytes() []byte { return b.buf }

func (b *Builder) patchU32(at int, v uint32) {
	b.byteOrder().PutUint32(b.buf[at:], v)
}

// Encoder writes events and entries in one byte order. Events passed to
// ComplexSound must come from the same Encoder.
type Encoder struct {
	Order binary.ByteOrder
}

var (
	LittleEndian = Encoder{Order: binary.LittleEndian}
	BigEndian    = Encoder{Order: binary.BigEndian}
)

// Header writes an event's info word, random offset and separator.
func (e Encoder) Header(code cuedata.EventCode, timestamp, randomOffset uint16) *Builder {
	info := uint32(code)&0x1F | uint32(timestamp)<<5
	return NewBuilder(e.Order).U32(info).U16(randomOffset).U8(0xFF)
}

func (e Encoder) PlayWave(timestamp uint16, track uint16, bank, loop uint8) []byte {
	return e.Header(cuedata.CodePlayWave, timestamp, 0).
		U8(0).U16(track).U8(bank).U8(loop).U16(0).U16(0).Bytes()
}

// Track is one entry of a track-variation block.
type Track struct {
	Track     uint16
	WaveBank  uint8
	MinWeight uint8
	MaxWeight uint8
}

// PlayWaveTracks writes a code 3 event. flags carries the variation type in
// its low nibble and the track-on-loop bit.
func (e Encoder) PlayWaveTracks(timestamp uint16, loop uint8, flags uint16, tracks ...Track) []byte {
	b := e.Header(cuedata.CodePlayWaveTrackVar, timestamp, 0).U8(0).U8(loop).U16(0).U16(0)
	writeTracks(b, flags, tracks)
	return b.Bytes()
}

// Effect is an effect-variation block.
type Effect struct {
	MinPitch, MaxPitch   int16
	MinVolume, MaxVolume uint8
	Flags                uint16
}

func writeEffect(b *Builder, e Effect) {
	b.I16(e.MinPitch).I16(e.MaxPitch).U8(e.MinVolume).U8(e.MaxVolume)
	for i := 0; i < 4; i++ {
		b.F32(0)
	}
	b.U16(e.Flags)
}

func writeTracks(b *Builder, flags uint16, tracks []Track) {
	b.U16(uint16(len(tracks))).U16(flags).U32(0)
	for _, t := range tracks {
		b.U16(t.Track).U8(t.WaveBank).U8(t.MinWeight).U8(t.MaxWeight)
	}
}

// PlayWaveEffect writes a code 4 event.
func (e Encoder) PlayWaveEffect(timestamp uint16, track uint16, bank, loop uint8, fx Effect) []byte {
	b := e.Header(cuedata.CodePlayWaveEffectVar, timestamp, 0).
		U8(0).U16(track).U8(bank).U8(loop).U16(0).U16(0)
	writeEffect(b, fx)
	return b.Bytes()
}

// PlayWaveTracksEffect writes a code 6 event.
func (e Encoder) PlayWaveTracksEffect(timestamp uint16, loop uint8, fx Effect, flags uint16, tracks ...Track) []byte {
	b := e.Header(cuedata.CodePlayWaveTrackEffect, timestamp, 0).U8(0).U8(loop).U16(0).U16(0)
	writeEffect(b, fx)
	writeTracks(b, flags, tracks)
	return b.Bytes()
}

// Stop writes a stop event; bit 0 is immediate, bit 1 is cue scope.
func (e Encoder) Stop(timestamp uint16, flags uint8) []byte {
	return e.Header(cuedata.CodeStop, timestamp, 0).U8(flags).Bytes()
}

func (e Encoder) Marker(timestamp uint16, value int32) []byte {
	return e.Header(cuedata.CodeMarker, timestamp, 0).I32(value).Bytes()
}

// MarkerRepeating fires count extra times every freqMs milliseconds.
func (e Encoder) MarkerRepeating(timestamp uint16, value int32, count, freqMs uint16) []byte {
	return e.Header(cuedata.CodeMarkerRepeating, timestamp, 0).I32(value).U16(count).U16(freqMs).Bytes()
}

// SetValue writes a volume (code 8) or pitch (code 7) event with a fixed value.
func (e Encoder) SetValue(code cuedata.EventCode, timestamp uint16, add bool, value float32) []byte {
	eqn := uint8(0x04)
	if add {
		eqn |= 0x01
	}
	return e.Header(code, timestamp, 0).U8(0).U8(eqn).F32(value).Bytes()
}

func (e Encoder) SetRandom(code cuedata.EventCode, timestamp uint16, lo, hi float32) []byte {
	return e.Header(code, timestamp, 0).U8(0).U8(0x08).F32(lo).F32(hi).Bytes()
}

func (e Encoder) SetRamp(code cuedata.EventCode, timestamp uint16, initial, slope, slopeDelta float32, durationMs uint16) []byte {
	return e.Header(code, timestamp, 0).U8(0x01).F32(initial).F32(slope).F32(slopeDelta).U16(durationMs).Bytes()
}

// Raw event bytes with a chosen code and body, for malformed input.
func (e Encoder) Raw(code cuedata.EventCode, body ...byte) []byte {
	return e.Header(code, 0, 0).Raw(body).Bytes()
}

// SoundHeader holds the fixed fields shared by simple and complex entries.
type SoundHeader struct {
	Category uint16
	Volume   uint8
	Pitch    int16
	Priority uint8
}

func writeHeader(b *Builder, flags uint8, h SoundHeader) {
	b.U8(flags).U16(h.Category).U8(h.Volume).I16(h.Pitch).U8(h.Priority).U16(0)
}

// SimpleSound writes a non-complex entry playing one track.
func (e Encoder) SimpleSound(h SoundHeader, track uint16, bank, loop uint8) []byte {
	b := NewBuilder(e.Order)
	writeHeader(b, 0, h)
	b.U16(track).U8(bank).U8(loop)
	return b.Bytes()
}

// Clip describes one clip of a complex entry. Events are pre-encoded.
type Clip struct {
	Volume uint8
	Filter uint32
	Events [][]byte
}

// ComplexSound writes a complex entry with its clip bodies appended after the
// clip headers. RPC and DSP ids add the corresponding blocks.
func (e Encoder) ComplexSound(h SoundHeader, rpc, dsp []uint32, clips ...Clip) []byte {
	flags := uint8(0x01)
	if len(rpc) > 0 {
		flags |= 0x02
	}
	if len(dsp) > 0 {
		flags |= 0x10
	}
	b := NewBuilder(e.Order)
	writeHeader(b, flags, h)
	b.U8(uint8(len(clips)))
	if len(rpc) > 0 {
		b.U16(uint16(3 + 4*len(rpc))).U8(uint8(len(rpc)))
		for _, id := range rpc {
			b.U32(id)
		}
	}
	if len(dsp) > 0 {
		b.U16(uint16(3 + 4*len(dsp))).U8(uint8(len(dsp)))
		for _, id := range dsp {
			b.U32(id)
		}
	}
	offsets := make([]int, len(clips))
	for i, c := range clips {
		b.U8(c.Volume)
		offsets[i] = b.Len()
		b.U32(0).U32(c.Filter)
	}
	for i, c := range clips {
		b.patchU32(offsets[i], uint32(b.Len()))
		b.U8(uint8(len(c.Events)))
		for _, ev := range c.Events {
			b.Raw(ev)
		}
	}
	return b.Bytes()
}

func Header(code cuedata.EventCode, timestamp, randomOffset uint16) *Builder {
	return LittleEndian.Header(code, timestamp, randomOffset)
}

func PlayWave(timestamp uint16, track uint16, bank, loop uint8) []byte {
	return LittleEndian.PlayWave(timestamp, track, bank, loop)
}

func PlayWaveTracks(timestamp uint16, loop uint8, flags uint16, tracks ...Track) []byte {
	return LittleEndian.PlayWaveTracks(timestamp, loop, flags, tracks...)
}

func PlayWaveEffect(timestamp uint16, track uint16, bank, loop uint8, fx Effect) []byte {
	return LittleEndian.PlayWaveEffect(timestamp, track, bank, loop, fx)
}

func PlayWaveTracksEffect(timestamp uint16, loop uint8, fx Effect, flags uint16, tracks ...Track) []byte {
	return LittleEndian.PlayWaveTracksEffect(timestamp, loop, fx, flags, tracks...)
}

func Stop(timestamp uint16, flags uint8) []byte { return LittleEndian.Stop(timestamp, flags) }

func Marker(timestamp uint16, value int32) []byte { return LittleEndian.Marker(timestamp, value) }

func MarkerRepeating(timestamp uint16, value int32, count, freqMs uint16) []byte {
	return LittleEndian.MarkerRepeating(timestamp, value, count, freqMs)
}

func SetValue(code cuedata.EventCode, timestamp uint16, add bool, value float32) []byte {
	return LittleEndian.SetValue(code, timestamp, add, value)
}

func SetRandom(code cuedata.EventCode, timestamp uint16, lo, hi float32) []byte {
	return LittleEndian.SetRandom(code, timestamp, lo, hi)
}

func SetRamp(code cuedata.EventCode, timestamp uint16, initial, slope, slopeDelta float32, durationMs uint16) []byte {
	return LittleEndian.SetRamp(code, timestamp, initial, slope, slopeDelta, durationMs)
}

func Raw(code cuedata.EventCode, body ...byte) []byte { return LittleEndian.Raw(code, body...) }

func SimpleSound(h SoundHeader, track uint16, bank, loop uint8) []byte {
	return LittleEndian.SimpleSound(h, track, bank, loop)
}

func ComplexSound(h SoundHeader, rpc, dsp []uint32, clips ...Clip) []byte {
	return LittleEndian.ComplexSound(h, rpc, dsp, clips...)
}

// Filter packs a clip filter word.
func Filter(enabled bool, mode cuedata.FilterMode, freq uint16, q float64) uint32 {
	var v uint32
	if enabled {
		v = 1
	}
	v |= uint32(mode&0x3) << 1
	v |= uint32(freq) << 3
	v |= uint32(math.Round(q*100)) & 0xFF << 23
	return v
}

// VolumeByte is the encoded byte for unity gain.
const VolumeByte uint8 = 0xB4
