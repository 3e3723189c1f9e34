package cue

import "github.com/cbegin/xact-go/internal/cuedata"

// VoiceHandle names a voice owned by a Device.
type VoiceHandle int

// WaveFormat describes resolved track data.
type WaveFormat struct {
	SampleRate int
	Channels   int
}

// TrackData is a resolved track: interleaved float32 samples in [-1, 1].
type TrackData struct {
	Format  WaveFormat
	Samples []float32
}

// Frames returns the number of sample frames in the track.
func (t *TrackData) Frames() int {
	if t == nil || t.Format.Channels <= 0 {
		return 0
	}
	return len(t.Samples) / t.Format.Channels
}

// TrackResolver loads a track out of a named wave bank. It is called at
// instantiate time and may block.
type TrackResolver interface {
	ResolveTrack(waveBank string, track uint16) (*TrackData, error)
}

// Device is the voice layer a cue instance drives. Calls are made from the
// engine update and must not block.
type Device interface {
	CreateVoice(format WaveFormat) (VoiceHandle, error)
	SubmitAndPlay(v VoiceHandle, data *TrackData, loop bool) error
	// SetVolume takes a linear gain.
	SetVolume(v VoiceHandle, gain float64)
	// SetPitch takes a frequency ratio, 2.0 is one octave up.
	SetPitch(v VoiceHandle, ratio float64)
	SetFilter(v VoiceHandle, f cuedata.Filter)
	// Stop with immediate=false lets the current buffer finish and exits any
	// hardware loop.
	Stop(v VoiceHandle, immediate bool)
	IsFinished(v VoiceHandle) bool
	DestroyVoice(v VoiceHandle)
}

// Pauser is implemented by devices that can hold a voice in place.
type Pauser interface {
	PauseVoice(v VoiceHandle)
	ResumeVoice(v VoiceHandle)
}

// ReverbSender is implemented by devices with a reverb bus.
type ReverbSender interface {
	SetReverbSend(v VoiceHandle, gain float64)
}
