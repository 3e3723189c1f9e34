package cue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cbegin/xact-go/internal/cuedata"
	"github.com/cbegin/xact-go/internal/cuedata/cuedatatest"
)

type fakeVoice struct {
	format    WaveFormat
	data      *TrackData
	loop      bool
	gain      float64
	ratio     float64
	filter    cuedata.Filter
	stopped   bool
	immediate bool
	finished  bool
	destroyed bool
	paused    bool
}

// fakeDevice records every call. Voices finish only when the test says so.
type fakeDevice struct {
	mu        sync.Mutex
	voices    []*fakeVoice
	failAfter int // CreateVoice fails once this many voices exist, 0 disables
}

func (d *fakeDevice) CreateVoice(f WaveFormat) (VoiceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAfter > 0 && len(d.voices) >= d.failAfter {
		return 0, fmt.Errorf("out of voices")
	}
	d.voices = append(d.voices, &fakeVoice{format: f, gain: -1, ratio: -1})
	return VoiceHandle(len(d.voices) - 1), nil
}

func (d *fakeDevice) SubmitAndPlay(v VoiceHandle, data *TrackData, loop bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voices[v].data = data
	d.voices[v].loop = loop
	return nil
}

func (d *fakeDevice) SetVolume(v VoiceHandle, gain float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voices[v].gain = gain
}

func (d *fakeDevice) SetPitch(v VoiceHandle, ratio float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voices[v].ratio = ratio
}

func (d *fakeDevice) SetFilter(v VoiceHandle, f cuedata.Filter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voices[v].filter = f
}

func (d *fakeDevice) Stop(v VoiceHandle, immediate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fv := d.voices[v]
	fv.stopped = true
	fv.immediate = fv.immediate || immediate
	if immediate {
		fv.finished = true
	}
}

func (d *fakeDevice) IsFinished(v VoiceHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voices[v].finished
}

func (d *fakeDevice) DestroyVoice(v VoiceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voices[v].destroyed = true
}

// finishLive marks every live voice as done playing.
func (d *fakeDevice) finishLive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range d.voices {
		if !v.destroyed {
			v.finished = true
		}
	}
}

func (d *fakeDevice) live() []*fakeVoice {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*fakeVoice
	for _, v := range d.voices {
		if !v.destroyed {
			out = append(out, v)
		}
	}
	return out
}

type pausingDevice struct {
	fakeDevice
}

func (d *pausingDevice) PauseVoice(v VoiceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voices[v].paused = true
}

func (d *pausingDevice) ResumeVoice(v VoiceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voices[v].paused = false
}

type fakeResolver struct {
	mu       sync.Mutex
	calls    int
	missing  map[uint16]bool
	resolved map[string]int
}

func (r *fakeResolver) ResolveTrack(bank string, track uint16) (*TrackData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.missing[track] {
		return nil, fmt.Errorf("no track %d", track)
	}
	if r.resolved == nil {
		r.resolved = map[string]int{}
	}
	r.resolved[bank]++
	return &TrackData{
		Format:  WaveFormat{SampleRate: 44100, Channels: 1},
		Samples: []float32{float32(track), 0, 0, 0},
	}, nil
}

type seqRand struct {
	vals []float64
	i    int
}

func (s *seqRand) Float64() float64 {
	if len(s.vals) == 0 {
		return 0
	}
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func mustSound(t *testing.T, raw []byte) *Sound {
	t.Helper()
	data, err := cuedata.ParseSound(raw, 0)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return NewSound(data)
}

func mustDefinition(t *testing.T, cfg Config) *Definition {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	if cfg.WaveBanks == nil {
		cfg.WaveBanks = []string{"main", "extra"}
	}
	d, err := NewDefinition(cfg)
	if err != nil {
		t.Fatalf("definition failed: %v", err)
	}
	return d
}

func singleSound(t *testing.T, clips ...cuedatatest.Clip) *Sound {
	t.Helper()
	return mustSound(t, cuedatatest.ComplexSound(cuedatatest.SoundHeader{Volume: cuedatatest.VolumeByte}, nil, nil, clips...))
}
