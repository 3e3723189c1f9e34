package cuedata

// EventCode is the five-bit event type stored in the low bits of an event's
// info word.
type EventCode uint8

const (
	CodeStop                EventCode = 0
	CodePlayWave            EventCode = 1
	CodePlayWaveTrackVar    EventCode = 3
	CodePlayWaveEffectVar   EventCode = 4
	CodePlayWaveTrackEffect EventCode = 6
	CodePitch               EventCode = 7
	CodeVolume              EventCode = 8
	CodeMarker              EventCode = 9
	CodePitchRepeating      EventCode = 16
	CodeVolumeRepeating     EventCode = 17
	CodeMarkerRepeating     EventCode = 18
)

const (
	// InfiniteLoop as a PlayWave loop count never exhausts.
	InfiniteLoop uint8 = 255
	// InfiniteRecurrence as a repeat count never exhausts.
	InfiniteRecurrence uint16 = 0xFFFF

	eventSeparator byte = 0xFF
)

// VariationType selects how a PlayWave event picks its next track.
type VariationType uint8

const (
	VariationOrdered VariationType = iota
	VariationOrderedFromRandom
	VariationRandom
	VariationRandomNoImmediateRepeats
	VariationShuffle
)

func (v VariationType) String() string {
	switch v {
	case VariationOrdered:
		return "Ordered"
	case VariationOrderedFromRandom:
		return "OrderedFromRandom"
	case VariationRandom:
		return "Random"
	case VariationRandomNoImmediateRepeats:
		return "RandomNoImmediateRepeats"
	case VariationShuffle:
		return "Shuffle"
	}
	return "Unknown"
}

type StopOptions uint8

const (
	StopAsAuthored StopOptions = iota
	StopImmediate
)

type StopScope uint8

const (
	ScopeTrack StopScope = iota
	ScopeCue
)

type Property uint8

const (
	PropertyVolume Property = iota
	PropertyPitch
)

func (p Property) String() string {
	if p == PropertyPitch {
		return "Pitch"
	}
	return "Volume"
}

type Operation uint8

const (
	OpReplace Operation = iota
	OpAdd
)

type FilterMode uint8

const (
	FilterLowPass FilterMode = iota
	FilterBandPass
	FilterHighPass
	FilterNotch
)

// Filter is the per-clip filter decoded from the clip header.
type Filter struct {
	Enabled   bool
	Mode      FilterMode
	Frequency float64 // Hz
	Q         float64
}

// Timing is shared by every event. Timestamp and RandomOffset are in
// milliseconds. Recurrence is only set for the repeating event codes.
type Timing struct {
	Timestamp    uint16
	RandomOffset uint16
	Repeating    bool
	RepeatCount  uint16  // extra firings after the first, InfiniteRecurrence = forever
	Frequency    float64 // raw/1000, seconds between firings
}

// Event is one decoded timeline entry. The set of implementations is closed.
type Event interface {
	Code() EventCode
	EventTiming() Timing
	isEvent()
}

// PlayWaveEvent starts a voice for one of its tracks.
type PlayWaveEvent struct {
	Timing
	EventCode EventCode
	Tracks    []uint16
	WaveBanks []uint8
	Weights   []uint8
	Variation VariationType

	// Pitch in cents, volume in dB x 100.
	MinPitch  int16
	MaxPitch  int16
	MinVolume float64
	MaxVolume float64

	Filter    Filter
	LoopCount uint8

	PitchVariationOnLoop  bool
	VolumeVariationOnLoop bool
	TrackVariationOnLoop  bool
	PitchVariationAdd     bool
	VolumeVariationAdd    bool
}

// HardwareLoop reports whether the voice can be looped by the device. Any
// variation-on-loop flag forces a manual retrigger so the variation is rolled
// again for each iteration.
func (e *PlayWaveEvent) HardwareLoop() bool {
	return e.LoopCount == InfiniteLoop &&
		!e.PitchVariationOnLoop && !e.VolumeVariationOnLoop && !e.TrackVariationOnLoop
}

func (e *PlayWaveEvent) Code() EventCode     { return e.EventCode }
func (e *PlayWaveEvent) EventTiming() Timing { return e.Timing }
func (*PlayWaveEvent) isEvent()              {}

type StopEvent struct {
	Timing
	Options StopOptions
	Scope   StopScope
}

func (e *StopEvent) Code() EventCode     { return CodeStop }
func (e *StopEvent) EventTiming() Timing { return e.Timing }
func (*StopEvent) isEvent()              {}

// SetValueEvent sets or offsets a property by a fixed amount. Volume values
// are in dB, pitch values in semitones.
type SetValueEvent struct {
	Timing
	EventCode EventCode
	Property  Property
	Operation Operation
	Value     float64
}

func (e *SetValueEvent) Code() EventCode     { return e.EventCode }
func (e *SetValueEvent) EventTiming() Timing { return e.Timing }
func (*SetValueEvent) isEvent()              {}

// SetRandomValueEvent draws its value uniformly from [Min, Max] each firing.
type SetRandomValueEvent struct {
	Timing
	EventCode EventCode
	Property  Property
	Operation Operation
	Min       float64
	Max       float64
}

func (e *SetRandomValueEvent) Code() EventCode     { return e.EventCode }
func (e *SetRandomValueEvent) EventTiming() Timing { return e.Timing }
func (*SetRandomValueEvent) isEvent()              {}

// SetRampValueEvent moves a property along
// initial + slope*t + slopeDelta*t*t/2 for Duration milliseconds.
type SetRampValueEvent struct {
	Timing
	EventCode    EventCode
	Property     Property
	InitialValue float64
	InitialSlope float64
	SlopeDelta   float64
	Duration     uint16
}

// ValueAt evaluates the ramp t milliseconds after it started.
func (e *SetRampValueEvent) ValueAt(t float64) float64 {
	if t < 0 {
		t = 0
	}
	if d := float64(e.Duration); t > d {
		t = d
	}
	sec := t / 1000
	return e.InitialValue + e.InitialSlope*sec + e.SlopeDelta*sec*sec/2
}

func (e *SetRampValueEvent) Code() EventCode     { return e.EventCode }
func (e *SetRampValueEvent) EventTiming() Timing { return e.Timing }
func (*SetRampValueEvent) isEvent()              {}

type MarkerEvent struct {
	Timing
	EventCode EventCode
	Value     int32
}

func (e *MarkerEvent) Code() EventCode     { return e.EventCode }
func (e *MarkerEvent) EventTiming() Timing { return e.Timing }
func (*MarkerEvent) isEvent()              {}

// Clip is one track of a sound: a volume, a filter and an event list in
// authored order.
type Clip struct {
	Volume float64 // dB x 100
	Filter Filter
	Events []Event
}

// Sound is a decoded sound entry.
type Sound struct {
	Complex     bool
	Category    uint16
	Volume      float64 // linear
	VolumeDB    float64 // dB x 100, before conversion
	Pitch       int16   // cents
	Priority    uint8
	Clips       []Clip
	RPCCurves   []uint32
	DSPPresets  []uint32
	HasRPC      bool
	HasDSP      bool
	EntryLength uint16
}

// TrackRef names one track inside one of the sound bank's wave banks.
type TrackRef struct {
	WaveBank uint8
	Track    uint16
}

// TrackRefs lists every track the sound's PlayWave events can start, in
// first-seen order without duplicates.
func (s *Sound) TrackRefs() []TrackRef {
	seen := map[TrackRef]struct{}{}
	var out []TrackRef
	for _, clip := range s.Clips {
		for _, ev := range clip.Events {
			pw, ok := ev.(*PlayWaveEvent)
			if !ok {
				continue
			}
			for i := range pw.Tracks {
				ref := TrackRef{WaveBank: pw.WaveBanks[i], Track: pw.Tracks[i]}
				if _, dup := seen[ref]; dup {
					continue
				}
				seen[ref] = struct{}{}
				out = append(out, ref)
			}
		}
	}
	return out
}
