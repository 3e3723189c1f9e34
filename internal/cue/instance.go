package cue

import (
	"log"
	"sync"

	"github.com/cbegin/xact-go/internal/cuedata"
	"github.com/cbegin/xact-go/internal/decibel"
)

type State uint8

const (
	StateCreated State = iota
	StatePreparing
	StatePrepared
	StatePlaying
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StatePreparing:
		return "Preparing"
	case StatePrepared:
		return "Prepared"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	}
	return "Unknown"
}

// Mix is the gain stage applied on top of the authored values, computed by
// the engine from categories, cue volume and RPC curves.
type Mix struct {
	Gain       float64 // linear
	PitchCents float64
	ReverbSend float64 // linear, 0 when unused
	// FilterFrequency overrides the authored cutoff when > 0.
	FilterFrequency float64
}

var unityMix = Mix{Gain: 1}

type voice struct {
	handle   VoiceHandle
	clip     int
	event    int
	stopping bool
}

type eventState struct {
	ev        cuedata.Event
	nextAt    float64 // ms on the instance clock
	scheduled bool
	firings   int
	done      bool

	// PlayWave
	prevTrack  int
	track      int
	pitchVar   float64 // cents
	volumeVar  float64 // dB x 100
	voice      *voice
	exhausted  bool
	iterations int
}

type ramp struct {
	ev    *cuedata.SetRampValueEvent
	start float64
}

type clipState struct {
	events  []eventState
	stopped bool

	volumeDB   float64 // from Volume set events, dB
	pitchSemis float64 // from Pitch set events, semitones
	ramps      []ramp
}

// Instance is one playback of a Definition. It walks the chosen Sound's
// clips against a millisecond clock advanced by Tick.
type Instance struct {
	def    *Definition
	sound  *Sound
	dev    Device
	rnd    cuedata.RandomSource
	logger *log.Logger
	opts   Options

	mu       sync.Mutex
	state    State
	clockMs  float64
	clips    []clipState
	voices   []*voice
	mix      Mix
	released bool

	fade     float64
	fadeStep float64 // per ms, negative while fading out
}

func newInstance(d *Definition, sound *Sound, dev Device, opts Options) *Instance {
	i := &Instance{
		def:    d,
		sound:  sound,
		dev:    dev,
		rnd:    opts.Random,
		logger: opts.Logger,
		opts:   opts,
		state:  StatePrepared,
		mix:    unityMix,
		fade:   1,
	}
	if sound != nil {
		i.clips = make([]clipState, len(sound.Data.Clips))
		for c, clip := range sound.Data.Clips {
			cs := &i.clips[c]
			cs.events = make([]eventState, len(clip.Events))
			for e, ev := range clip.Events {
				cs.events[e] = eventState{ev: ev, prevTrack: -1, track: -1}
			}
		}
	}
	return i
}

func (i *Instance) Definition() *Definition { return i.def }

// Sound is nil when the draw landed on the residual.
func (i *Instance) Sound() *Sound { return i.sound }

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Priority is the Sound's authored priority; higher values are less
// important.
func (i *Instance) Priority() uint8 {
	if i.sound == nil {
		return 255
	}
	return i.sound.Data.Priority
}

// Loudness is the instance-level linear gain without per-voice variation.
func (i *Instance) Loudness() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sound == nil {
		return 0
	}
	return i.sound.Data.Volume * i.mix.Gain * i.fade
}

// Elapsed returns the instance clock in milliseconds.
func (i *Instance) Elapsed() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.clockMs
}

// VoiceCount returns the number of live device voices.
func (i *Instance) VoiceCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.voices)
}

// SetMix replaces the external gain stage and reapplies it to live voices.
func (i *Instance) SetMix(m Mix) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.mix = m
	i.applyAll()
}

// Play starts the clock at zero and fires every event due at t=0. With
// Options.StartPaused nothing fires until Resume.
func (i *Instance) Play() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StatePrepared && i.state != StateCreated {
		return
	}
	if i.sound == nil {
		i.finish()
		return
	}
	i.state = StatePlaying
	i.clockMs = 0
	if ms := i.def.cfg.FadeInMs; ms > 0 {
		i.fade = 0
		i.fadeStep = 1 / float64(ms)
	}
	for c := range i.clips {
		for e := range i.clips[c].events {
			i.schedule(&i.clips[c].events[e], float64(i.clips[c].events[e].ev.EventTiming().Timestamp))
		}
	}
	if i.opts.StartPaused {
		i.state = StatePaused
		return
	}
	i.dispatch()
	i.checkDone()
}

// Tick advances the clock by elapsedMs and runs everything that came due.
func (i *Instance) Tick(elapsedMs float64) {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	switch i.state {
	case StatePlaying:
		i.clockMs += elapsedMs
		i.stepFade(elapsedMs)
		i.dispatch()
		i.reapVoices()
		i.stepRamps()
		i.applyAll()
		i.checkDone()
	case StateStopping:
		i.clockMs += elapsedMs
		i.stepFade(elapsedMs)
		if i.fadeStep < 0 && i.fade <= 0 {
			i.stopVoices(true)
		}
		i.applyAll()
		i.reapVoices()
		if len(i.voices) == 0 {
			i.finish()
		}
	}
}

func (i *Instance) Pause() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StatePlaying {
		return
	}
	i.state = StatePaused
	if p, ok := i.dev.(Pauser); ok {
		for _, v := range i.voices {
			p.PauseVoice(v.handle)
		}
	}
}

func (i *Instance) Resume() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StatePaused {
		return
	}
	i.state = StatePlaying
	if p, ok := i.dev.(Pauser); ok {
		for _, v := range i.voices {
			p.ResumeVoice(v.handle)
		}
	}
	i.dispatch()
	i.checkDone()
}

// Stop ends playback. Immediate destroys every voice now. Otherwise the
// instance fades out over the definition's fade-out time, or lets voices run
// out of their current buffer, and stops on a later Tick.
func (i *Instance) Stop(immediate bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stop(immediate)
}

func (i *Instance) stop(immediate bool) {
	switch i.state {
	case StateStopped:
		return
	case StateStopping:
		if !immediate {
			return
		}
	}
	if immediate || i.state == StatePrepared || i.state == StateCreated || len(i.voices) == 0 {
		i.stopVoices(true)
		i.finish()
		return
	}
	if p, ok := i.dev.(Pauser); ok && i.state == StatePaused {
		for _, v := range i.voices {
			p.ResumeVoice(v.handle)
		}
	}
	i.state = StateStopping
	if ms := i.def.cfg.FadeOutMs; ms > 0 && i.fade > 0 {
		i.fadeStep = -i.fade / float64(ms)
		for _, v := range i.voices {
			v.stopping = true
		}
		return
	}
	i.stopVoices(false)
}

func (i *Instance) stopVoices(immediate bool) {
	for _, v := range i.voices {
		if immediate {
			i.dev.Stop(v.handle, true)
			i.dev.DestroyVoice(v.handle)
			if es := i.eventFor(v); es != nil {
				es.voice = nil
			}
			continue
		}
		if !v.stopping {
			i.dev.Stop(v.handle, false)
			v.stopping = true
		}
	}
	if immediate {
		i.voices = i.voices[:0]
	}
}

func (i *Instance) finish() {
	i.state = StateStopped
	if i.released {
		return
	}
	i.released = true
	i.def.Release(i)
	if i.opts.OnStop != nil {
		i.opts.OnStop(i)
	}
}

func (i *Instance) stepFade(elapsedMs float64) {
	if i.fadeStep == 0 {
		return
	}
	i.fade += i.fadeStep * elapsedMs
	if i.fade >= 1 {
		i.fade = 1
		i.fadeStep = 0
	}
	if i.fade <= 0 {
		i.fade = 0
	}
}

func (i *Instance) schedule(es *eventState, at float64) {
	t := es.ev.EventTiming()
	if t.RandomOffset > 0 && i.rnd != nil {
		at += i.rnd.Float64() * float64(t.RandomOffset)
	}
	es.nextAt = at
	es.scheduled = true
}

type eventRef struct {
	clip, event int
}

// dispatch fires due events in time order within each clip. Recurring events
// may fire several times inside one long tick.
func (i *Instance) dispatch() {
	for c := range i.clips {
		for i.state == StatePlaying && !i.clips[c].stopped {
			next := -1
			for e := range i.clips[c].events {
				es := &i.clips[c].events[e]
				if !es.scheduled || es.done || es.nextAt > i.clockMs {
					continue
				}
				if next < 0 || es.nextAt < i.clips[c].events[next].nextAt {
					next = e
				}
			}
			if next < 0 {
				break
			}
			i.fire(c, next)
		}
	}
}

func (i *Instance) fire(c, e int) {
	cs := &i.clips[c]
	es := &cs.events[e]
	at := es.nextAt
	es.scheduled = false
	es.firings++

	switch ev := es.ev.(type) {
	case *cuedata.PlayWaveEvent:
		es.done = true
		i.playWave(c, e, ev)
		return
	case *cuedata.StopEvent:
		es.done = true
		if ev.Scope == cuedata.ScopeCue {
			i.stop(ev.Options == cuedata.StopImmediate)
			return
		}
		i.stopClip(c, ev.Options == cuedata.StopImmediate)
		return
	case *cuedata.SetValueEvent:
		applyProperty(cs, ev.Property, ev.Operation, ev.Value)
	case *cuedata.SetRandomValueEvent:
		v := ev.Min
		if ev.Max != ev.Min && i.rnd != nil {
			v = ev.Min + i.rnd.Float64()*(ev.Max-ev.Min)
		}
		applyProperty(cs, ev.Property, ev.Operation, v)
	case *cuedata.SetRampValueEvent:
		cs.ramps = append(cs.ramps, ramp{ev: ev, start: at})
		applyProperty(cs, ev.Property, cuedata.OpReplace, ev.ValueAt(i.clockMs-at))
	case *cuedata.MarkerEvent:
		if i.opts.OnMarker != nil {
			i.opts.OnMarker(i, ev.Value)
		}
	}

	t := es.ev.EventTiming()
	// A zero frequency recurrence would fire forever inside one tick.
	if !t.Repeating || t.Frequency <= 0 {
		es.done = true
	} else if t.RepeatCount != cuedata.InfiniteRecurrence && es.firings > int(t.RepeatCount) {
		es.done = true
	} else {
		i.schedule(es, at+t.Frequency*1000)
	}
	if i.state == StatePlaying {
		i.applyClip(c)
	}
}

func applyProperty(cs *clipState, prop cuedata.Property, op cuedata.Operation, v float64) {
	target := &cs.volumeDB
	if prop == cuedata.PropertyPitch {
		target = &cs.pitchSemis
	}
	if op == cuedata.OpAdd {
		*target += v
		return
	}
	*target = v
}

func (i *Instance) stepRamps() {
	for c := range i.clips {
		cs := &i.clips[c]
		kept := cs.ramps[:0]
		for _, r := range cs.ramps {
			elapsed := i.clockMs - r.start
			applyProperty(cs, r.ev.Property, cuedata.OpReplace, r.ev.ValueAt(elapsed))
			if elapsed < float64(r.ev.Duration) {
				kept = append(kept, r)
			}
		}
		cs.ramps = kept
	}
}

func (i *Instance) stopClip(c int, immediate bool) {
	cs := &i.clips[c]
	cs.stopped = true
	cs.ramps = nil
	for e := range cs.events {
		es := &cs.events[e]
		es.done = true
		if _, ok := es.ev.(*cuedata.PlayWaveEvent); ok && es.voice == nil {
			es.exhausted = true
		}
	}
	kept := i.voices[:0]
	for _, v := range i.voices {
		if v.clip != c {
			kept = append(kept, v)
			continue
		}
		if immediate {
			i.dev.Stop(v.handle, true)
			i.dev.DestroyVoice(v.handle)
			es := &cs.events[v.event]
			es.voice = nil
			es.exhausted = true
			continue
		}
		if !v.stopping {
			i.dev.Stop(v.handle, false)
			v.stopping = true
		}
		kept = append(kept, v)
	}
	i.voices = kept
}

// playWave starts the next iteration of a PlayWave event. Random values are
// drawn track, then pitch, then volume, and only for fields with a range.
func (i *Instance) playWave(c, e int, ev *cuedata.PlayWaveEvent) {
	es := &i.clips[c].events[e]
	first := es.iterations == 0

	if first || ev.TrackVariationOnLoop {
		es.track = cuedata.SelectTrack(ev.Variation, ev.Weights, es.prevTrack, i.rnd)
		es.prevTrack = es.track
	}
	if first || ev.PitchVariationOnLoop {
		draw := float64(ev.MinPitch)
		if ev.MaxPitch != ev.MinPitch && i.rnd != nil {
			draw += i.rnd.Float64() * float64(int(ev.MaxPitch)-int(ev.MinPitch))
		}
		if !first && ev.PitchVariationAdd {
			es.pitchVar += draw
		} else {
			es.pitchVar = draw
		}
	}
	if first || ev.VolumeVariationOnLoop {
		draw := ev.MinVolume
		if ev.MaxVolume != ev.MinVolume && i.rnd != nil {
			draw += i.rnd.Float64() * (ev.MaxVolume - ev.MinVolume)
		}
		if !first && ev.VolumeVariationAdd {
			es.volumeVar += draw
		} else {
			es.volumeVar = draw
		}
	}
	es.iterations++

	ref := cuedata.TrackRef{WaveBank: ev.WaveBanks[es.track], Track: ev.Tracks[es.track]}
	data, ok := i.sound.Track(ref)
	if !ok || data == nil {
		i.logger.Printf("cue %s: bank %d track %d not resolved", i.def.cfg.Name, ref.WaveBank, ref.Track)
		es.exhausted = true
		return
	}
	h, err := i.dev.CreateVoice(data.Format)
	if err != nil {
		i.logger.Printf("cue %s: create voice: %v", i.def.cfg.Name, err)
		es.exhausted = true
		return
	}
	v := &voice{handle: h, clip: c, event: e}
	es.voice = v
	i.voices = append(i.voices, v)
	i.applyVoice(v)
	if ev.Filter.Enabled {
		i.dev.SetFilter(h, i.filterFor(ev.Filter))
	}
	if err := i.dev.SubmitAndPlay(h, data, ev.HardwareLoop()); err != nil {
		i.logger.Printf("cue %s: submit: %v", i.def.cfg.Name, err)
		i.dev.DestroyVoice(h)
		i.voices = i.voices[:len(i.voices)-1]
		es.voice = nil
		es.exhausted = true
	}
}

func (i *Instance) filterFor(f cuedata.Filter) cuedata.Filter {
	if i.mix.FilterFrequency > 0 {
		f.Frequency = i.mix.FilterFrequency
	}
	return f
}

// reapVoices destroys finished voices and retriggers PlayWave events that
// still have loop iterations left.
func (i *Instance) reapVoices() {
	var retrigger []eventRef
	kept := i.voices[:0]
	for _, v := range i.voices {
		if !i.dev.IsFinished(v.handle) {
			kept = append(kept, v)
			continue
		}
		i.dev.DestroyVoice(v.handle)
		es := i.eventFor(v)
		if es == nil {
			continue
		}
		es.voice = nil
		pw := es.ev.(*cuedata.PlayWaveEvent)
		if v.stopping || i.clips[v.clip].stopped || i.state != StatePlaying {
			es.exhausted = true
			continue
		}
		if pw.LoopCount == cuedata.InfiniteLoop || es.iterations <= int(pw.LoopCount) {
			retrigger = append(retrigger, eventRef{clip: v.clip, event: v.event})
			continue
		}
		es.exhausted = true
	}
	i.voices = kept
	for _, r := range retrigger {
		es := &i.clips[r.clip].events[r.event]
		i.playWave(r.clip, r.event, es.ev.(*cuedata.PlayWaveEvent))
	}
}

func (i *Instance) eventFor(v *voice) *eventState {
	if v.clip >= len(i.clips) || v.event >= len(i.clips[v.clip].events) {
		return nil
	}
	return &i.clips[v.clip].events[v.event]
}

func (i *Instance) applyAll() {
	for _, v := range i.voices {
		i.applyVoice(v)
	}
}

func (i *Instance) applyClip(c int) {
	for _, v := range i.voices {
		if v.clip == c {
			i.applyVoice(v)
		}
	}
}

func (i *Instance) applyVoice(v *voice) {
	es := i.eventFor(v)
	if es == nil || i.sound == nil {
		return
	}
	cs := &i.clips[v.clip]
	gain := i.sound.Data.Volume *
		decibel.CalculateAmplitudeRatio(es.volumeVar+cs.volumeDB*100) *
		i.mix.Gain * i.fade
	cents := float64(i.sound.Data.Pitch) + es.pitchVar + cs.pitchSemis*100 + i.mix.PitchCents
	i.dev.SetVolume(v.handle, gain)
	i.dev.SetPitch(v.handle, decibel.CentsToRatio(cents))
	if rs, ok := i.dev.(ReverbSender); ok {
		rs.SetReverbSend(v.handle, i.mix.ReverbSend)
	}
}

// checkDone stops the instance once every PlayWave event is exhausted, no
// finite event is still pending and no voice is left.
func (i *Instance) checkDone() {
	if i.state != StatePlaying || len(i.voices) > 0 {
		return
	}
	for c := range i.clips {
		for e := range i.clips[c].events {
			es := &i.clips[c].events[e]
			if _, ok := es.ev.(*cuedata.PlayWaveEvent); ok {
				if !es.exhausted {
					return
				}
				continue
			}
			if es.done || i.clips[c].stopped {
				continue
			}
			t := es.ev.EventTiming()
			if t.Repeating && t.RepeatCount == cuedata.InfiniteRecurrence && es.firings > 0 {
				continue
			}
			return
		}
	}
	i.finish()
}

// Tracks returns the track index each PlayWave event last selected, keyed
// by clip then event, -1 where nothing has been selected.
func (i *Instance) Tracks() [][]int {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([][]int, len(i.clips))
	for c := range i.clips {
		out[c] = make([]int, len(i.clips[c].events))
		for e := range i.clips[c].events {
			out[c][e] = i.clips[c].events[e].track
		}
	}
	return out
}
