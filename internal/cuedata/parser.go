package cuedata

import (
	"encoding/binary"

	"github.com/cbegin/xact-go/internal/decibel"
)

const (
	soundFlagComplex = 0x01
	soundFlagRPC     = 0x0E
	soundFlagDSP     = 0x10

	effectPitchRange   = 0x1000
	effectVolumeRange  = 0x2000
	effectPitchOnLoop  = 0x0100
	effectVolumeOnLoop = 0x0200
	effectPitchAdd     = 0x0004
	effectVolumeAdd    = 0x0001

	trackVariationMask   = 0x000F
	trackVariationOnLoop = 0x0080

	eqnAdd    = 0x01
	eqnValue  = 0x04
	eqnRandom = 0x08

	settingRamp = 0x01

	stopImmediate = 0x01
	stopCueScope  = 0x02

	// Weight given to the single track of a basic PlayWave event.
	singleTrackWeight = 0xFF
)

type ParserConfig struct {
	ByteOrder binary.ByteOrder
}

func DefaultParserConfig() ParserConfig {
	return ParserConfig{ByteOrder: binary.LittleEndian}
}

// Parser decodes sound entries. It holds no state between calls.
type Parser struct{ cfg ParserConfig }

func NewParser(cfg ParserConfig) *Parser {
	if cfg.ByteOrder == nil {
		cfg.ByteOrder = binary.LittleEndian
	}
	return &Parser{cfg: cfg}
}

// ParseSound decodes the sound entry that starts at offset. Clip offsets
// inside the entry are absolute offsets into buf.
func (p *Parser) ParseSound(buf []byte, offset int64) (*Sound, error) {
	r := NewReaderOrder(buf, p.cfg.ByteOrder)
	if err := r.Seek(offset); err != nil {
		return nil, err
	}
	return p.parseSound(r)
}

// ParseClip decodes a single clip body (event count followed by events) at
// offset, using the given clip volume (dB x 100) and filter.
func (p *Parser) ParseClip(buf []byte, offset int64, volume float64, filter Filter) (*Clip, error) {
	r := NewReaderOrder(buf, p.cfg.ByteOrder)
	if err := r.Seek(offset); err != nil {
		return nil, err
	}
	clip := &Clip{Volume: volume, Filter: filter}
	if err := p.parseClipEvents(r, clip); err != nil {
		return nil, err
	}
	return clip, nil
}

// ParseSound decodes a little-endian sound entry.
func ParseSound(buf []byte, offset int64) (*Sound, error) {
	return NewParser(DefaultParserConfig()).ParseSound(buf, offset)
}

func (p *Parser) parseSound(r *Reader) (*Sound, error) {
	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	s := &Sound{
		Complex: flags&soundFlagComplex != 0,
		HasRPC:  flags&soundFlagRPC != 0,
		HasDSP:  flags&soundFlagDSP != 0,
	}
	if s.Category, err = r.Uint16(); err != nil {
		return nil, err
	}
	vol, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	s.VolumeDB = decibel.ParseDecibelByte(vol)
	s.Volume = decibel.CalculateAmplitudeRatio(s.VolumeDB)
	if s.Pitch, err = r.Int16(); err != nil {
		return nil, err
	}
	if s.Priority, err = r.Uint8(); err != nil {
		return nil, err
	}
	if s.EntryLength, err = r.Uint16(); err != nil {
		return nil, err
	}

	var clipCount uint8
	if s.Complex {
		if clipCount, err = r.Uint8(); err != nil {
			return nil, err
		}
	} else {
		clip, err := parseSimpleClip(r)
		if err != nil {
			return nil, err
		}
		s.Clips = []Clip{*clip}
	}

	if s.HasRPC {
		if s.RPCCurves, err = readReferenceBlock(r, true); err != nil {
			return nil, err
		}
	}
	if s.HasDSP {
		if s.DSPPresets, err = readReferenceBlock(r, false); err != nil {
			return nil, err
		}
	}

	if s.Complex {
		s.Clips = make([]Clip, 0, clipCount)
		for i := 0; i < int(clipCount); i++ {
			clip, err := p.parseClipHeader(r)
			if err != nil {
				return nil, err
			}
			s.Clips = append(s.Clips, *clip)
		}
	}
	return s, nil
}

func parseSimpleClip(r *Reader) (*Clip, error) {
	track, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	bank, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	loop, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return &Clip{
		Events: []Event{&PlayWaveEvent{
			EventCode: CodePlayWave,
			Tracks:    []uint16{track},
			WaveBanks: []uint8{bank},
			Weights:   []uint8{singleTrackWeight},
			Variation: VariationOrdered,
			LoopCount: loop,
		}},
	}, nil
}

// readReferenceBlock reads a length-prefixed list of 32-bit ids. When
// seekToEnd is set the cursor lands at the end of the declared block, which
// may carry data after the ids.
func readReferenceBlock(r *Reader, seekToEnd bool) ([]uint32, error) {
	start := r.Pos()
	length, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	count, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, count)
	for i := range ids {
		if ids[i], err = r.Uint32(); err != nil {
			return nil, err
		}
	}
	if !seekToEnd {
		return ids, nil
	}
	end := start + int64(length)
	if end < r.Pos() {
		return nil, formatErr(start, ErrCorrupt, "reference block length %d shorter than its %d ids", length, count)
	}
	if err := r.Seek(end); err != nil {
		return nil, err
	}
	return ids, nil
}

func (p *Parser) parseClipHeader(r *Reader) (*Clip, error) {
	vol, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	offset, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	filterBits, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	clip := &Clip{
		Volume: decibel.ParseDecibelByte(vol),
		Filter: decodeFilter(filterBits),
	}
	resume := r.Pos()
	if err := r.Seek(int64(offset)); err != nil {
		return nil, err
	}
	if err := p.parseClipEvents(r, clip); err != nil {
		return nil, err
	}
	if err := r.Seek(resume); err != nil {
		return nil, err
	}
	return clip, nil
}

func decodeFilter(v uint32) Filter {
	return Filter{
		Enabled:   v&0x1 != 0,
		Mode:      FilterMode((v >> 1) & 0x3),
		Frequency: float64((v >> 3) & 0xFFFF),
		Q:         float64((v>>23)&0xFF) / 100,
	}
}

func (p *Parser) parseClipEvents(r *Reader, clip *Clip) error {
	count, err := r.Uint8()
	if err != nil {
		return err
	}
	clip.Events = make([]Event, 0, count)
	for i := 0; i < int(count); i++ {
		ev, err := parseEvent(r, clip)
		if err != nil {
			return err
		}
		clip.Events = append(clip.Events, ev)
	}
	return nil
}

func parseEvent(r *Reader, clip *Clip) (Event, error) {
	start := r.Pos()
	info, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	code := EventCode(info & 0x1F)
	timing := Timing{Timestamp: uint16((info >> 5) & 0xFFFF)}
	if timing.RandomOffset, err = r.Uint16(); err != nil {
		return nil, err
	}
	sep, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if sep != eventSeparator {
		return nil, formatErr(r.Pos()-1, ErrCorrupt, "event separator 0x%02X, want 0x%02X", sep, eventSeparator)
	}

	switch code {
	case CodeStop:
		return parseStop(r, timing)
	case CodePlayWave:
		return parsePlayWave(r, timing, clip, code, false)
	case CodePlayWaveTrackVar:
		return parsePlayWaveComplex(r, timing, clip, code, false, true)
	case CodePlayWaveEffectVar:
		return parsePlayWave(r, timing, clip, code, true)
	case CodePlayWaveTrackEffect:
		return parsePlayWaveComplex(r, timing, clip, code, true, true)
	case CodePitch, CodePitchRepeating:
		return parseSetEvent(r, timing, code, PropertyPitch, code == CodePitchRepeating)
	case CodeVolume, CodeVolumeRepeating:
		return parseSetEvent(r, timing, code, PropertyVolume, code == CodeVolumeRepeating)
	case CodeMarker, CodeMarkerRepeating:
		return parseMarker(r, timing, code, code == CodeMarkerRepeating)
	}
	return nil, formatErr(start, ErrNotSupportedFormat, "event type %d", code)
}

func parseStop(r *Reader, timing Timing) (Event, error) {
	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	ev := &StopEvent{Timing: timing}
	if flags&stopImmediate != 0 {
		ev.Options = StopImmediate
	}
	if flags&stopCueScope != 0 {
		ev.Scope = ScopeCue
	}
	return ev, nil
}

func newPlayWave(timing Timing, clip *Clip, code EventCode) *PlayWaveEvent {
	return &PlayWaveEvent{
		Timing:    timing,
		EventCode: code,
		Variation: VariationOrdered,
		MinVolume: clip.Volume,
		MaxVolume: clip.Volume,
		Filter:    clip.Filter,
	}
}

// parsePlayWave decodes the basic header (codes 1 and 4): one track, and for
// code 4 an effect-variation block.
func parsePlayWave(r *Reader, timing Timing, clip *Clip, code EventCode, effect bool) (Event, error) {
	if _, err := r.Uint8(); err != nil { // flags, unused
		return nil, err
	}
	track, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	bank, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	pw := newPlayWave(timing, clip, code)
	pw.Tracks = []uint16{track}
	pw.WaveBanks = []uint8{bank}
	pw.Weights = []uint8{singleTrackWeight}
	if pw.LoopCount, err = r.Uint8(); err != nil {
		return nil, err
	}
	if err := r.Skip(4); err != nil { // position, angle
		return nil, err
	}
	if effect {
		if err := parseEffectVariation(r, pw, clip); err != nil {
			return nil, err
		}
	}
	return pw, nil
}

// parsePlayWaveComplex decodes the complex header (codes 3 and 6) followed by
// an optional effect-variation block and the track-variation block.
func parsePlayWaveComplex(r *Reader, timing Timing, clip *Clip, code EventCode, effect, tracks bool) (Event, error) {
	if _, err := r.Uint8(); err != nil { // flags, unused
		return nil, err
	}
	pw := newPlayWave(timing, clip, code)
	var err error
	if pw.LoopCount, err = r.Uint8(); err != nil {
		return nil, err
	}
	if err := r.Skip(4); err != nil { // position, angle
		return nil, err
	}
	if effect {
		if err := parseEffectVariation(r, pw, clip); err != nil {
			return nil, err
		}
	}
	if tracks {
		if err := parseTrackVariation(r, pw); err != nil {
			return nil, err
		}
	}
	return pw, nil
}

func parseEffectVariation(r *Reader, pw *PlayWaveEvent, clip *Clip) error {
	minPitch, err := r.Int16()
	if err != nil {
		return err
	}
	maxPitch, err := r.Int16()
	if err != nil {
		return err
	}
	minVol, err := r.Uint8()
	if err != nil {
		return err
	}
	maxVol, err := r.Uint8()
	if err != nil {
		return err
	}
	// Frequency and Q variation ranges, two float pairs.
	if err := r.Skip(16); err != nil {
		return err
	}
	flags, err := r.Uint16()
	if err != nil {
		return err
	}
	if flags&effectPitchRange != 0 {
		pw.MinPitch, pw.MaxPitch = minPitch, maxPitch
	} else {
		pw.MinPitch, pw.MaxPitch = 0, 0
	}
	if flags&effectVolumeRange != 0 {
		pw.MinVolume = decibel.ParseDecibelByte(minVol)
		pw.MaxVolume = decibel.ParseDecibelByte(maxVol)
	} else {
		pw.MinVolume, pw.MaxVolume = clip.Volume, clip.Volume
	}
	pw.PitchVariationOnLoop = flags&effectPitchOnLoop != 0
	pw.VolumeVariationOnLoop = flags&effectVolumeOnLoop != 0
	pw.PitchVariationAdd = flags&effectPitchAdd != 0
	pw.VolumeVariationAdd = flags&effectVolumeAdd != 0
	return nil
}

func parseTrackVariation(r *Reader, pw *PlayWaveEvent) error {
	start := r.Pos()
	count, err := r.Uint16()
	if err != nil {
		return err
	}
	flags, err := r.Uint16()
	if err != nil {
		return err
	}
	if err := r.Skip(4); err != nil {
		return err
	}
	if count == 0 {
		return formatErr(start, ErrCorrupt, "track variation with no tracks")
	}
	variation := VariationType(flags & trackVariationMask)
	if variation > VariationShuffle {
		return formatErr(start, ErrNotSupportedFormat, "track variation type %d", variation)
	}
	pw.Variation = variation
	pw.TrackVariationOnLoop = flags&trackVariationOnLoop != 0
	pw.Tracks = make([]uint16, count)
	pw.WaveBanks = make([]uint8, count)
	pw.Weights = make([]uint8, count)
	for i := 0; i < int(count); i++ {
		if pw.Tracks[i], err = r.Uint16(); err != nil {
			return err
		}
		if pw.WaveBanks[i], err = r.Uint8(); err != nil {
			return err
		}
		minWeight, err := r.Uint8()
		if err != nil {
			return err
		}
		maxWeight, err := r.Uint8()
		if err != nil {
			return err
		}
		if maxWeight > minWeight {
			pw.Weights[i] = maxWeight - minWeight
		}
	}
	return nil
}

func parseSetEvent(r *Reader, timing Timing, code EventCode, prop Property, repeating bool) (Event, error) {
	start := r.Pos()
	setting, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	var ev Event
	if setting&settingRamp != 0 {
		ramp := &SetRampValueEvent{EventCode: code, Property: prop}
		if ramp.InitialValue, err = readFloat(r); err != nil {
			return nil, err
		}
		if ramp.InitialSlope, err = readFloat(r); err != nil {
			return nil, err
		}
		if ramp.SlopeDelta, err = readFloat(r); err != nil {
			return nil, err
		}
		if ramp.Duration, err = r.Uint16(); err != nil {
			return nil, err
		}
		ev = ramp
	} else {
		eqn, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		op := OpReplace
		if eqn&eqnAdd != 0 {
			op = OpAdd
		}
		switch {
		case eqn&eqnValue != 0:
			v, err := readFloat(r)
			if err != nil {
				return nil, err
			}
			ev = &SetValueEvent{EventCode: code, Property: prop, Operation: op, Value: v}
		case eqn&eqnRandom != 0:
			lo, err := readFloat(r)
			if err != nil {
				return nil, err
			}
			hi, err := readFloat(r)
			if err != nil {
				return nil, err
			}
			ev = &SetRandomValueEvent{EventCode: code, Property: prop, Operation: op, Min: lo, Max: hi}
		default:
			return nil, formatErr(start, ErrNotSupportedFormat, "%s equation flags 0x%02X", prop, eqn)
		}
	}
	if repeating {
		if err := readRecurrence(r, &timing); err != nil {
			return nil, err
		}
	}
	switch e := ev.(type) {
	case *SetValueEvent:
		e.Timing = timing
	case *SetRandomValueEvent:
		e.Timing = timing
	case *SetRampValueEvent:
		e.Timing = timing
	}
	return ev, nil
}

func parseMarker(r *Reader, timing Timing, code EventCode, repeating bool) (Event, error) {
	v, err := r.Int32()
	if err != nil {
		return nil, err
	}
	if repeating {
		if err := readRecurrence(r, &timing); err != nil {
			return nil, err
		}
	}
	return &MarkerEvent{Timing: timing, EventCode: code, Value: v}, nil
}

func readRecurrence(r *Reader, timing *Timing) error {
	count, err := r.Uint16()
	if err != nil {
		return err
	}
	freq, err := r.Uint16()
	if err != nil {
		return err
	}
	timing.Repeating = true
	timing.RepeatCount = count
	timing.Frequency = float64(freq) / 1000.0
	return nil
}

func readFloat(r *Reader) (float64, error) {
	v, err := r.Float32()
	return float64(v), err
}
