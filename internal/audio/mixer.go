package audio

import (
	"math"
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/pkg/errors"

	"github.com/cbegin/xact-go/internal/cue"
	"github.com/cbegin/xact-go/internal/cuedata"
	"github.com/cbegin/xact-go/internal/effects"
)

var (
	ErrOutOfVoices  = errors.New("audio: out of voices")
	ErrUnknownVoice = errors.New("audio: unknown voice")
	ErrBadFormat    = errors.New("audio: unsupported wave format")
)

type MixerConfig struct {
	SampleRate int
	// MaxVoices caps live voices, 0 means unlimited.
	MaxVoices int
	// Reverb enables the reverb send bus when non-nil.
	Reverb *effects.ReverbConfig
	// EQ puts a five band equalizer on the master bus, flat until
	// SetEQBand is called.
	EQ bool
	// Limiter puts a peak limiter on the master bus after the EQ.
	Limiter bool
}

func DefaultMixerConfig(sampleRate int) MixerConfig {
	rc := effects.DefaultReverbConfig()
	return MixerConfig{
		SampleRate: sampleRate,
		MaxVoices:  64,
		Reverb:     &rc,
		EQ:         true,
		Limiter:    true,
	}
}

type mixVoice struct {
	handle   cue.VoiceHandle
	format   cue.WaveFormat
	data     *cue.TrackData
	pos      float64 // source frames
	step     float64 // source rate / output rate
	ratio    float64
	gain     float64
	send     float64
	loop     bool
	playing  bool
	paused   bool
	finished bool
	filterL  *biquad.Section
	filterR  *biquad.Section
}

// Mixer is a software voice mixer. It implements cue.Device, cue.Pauser and
// cue.ReverbSender, and renders interleaved stereo float32 through Process.
type Mixer struct {
	mu         sync.Mutex
	cfg        MixerConfig
	voices     []*mixVoice
	next       cue.VoiceHandle
	reverb     *effects.Reverb
	eq         *effects.MasterEQ
	master     *effects.Chain
	masterGain float64
	sends      []float32
}

func NewMixer(cfg MixerConfig) (*Mixer, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.Errorf("audio: invalid sample rate %d", cfg.SampleRate)
	}
	m := &Mixer{cfg: cfg, master: effects.NewChain(), masterGain: 1}
	if cfg.Reverb != nil {
		r, err := effects.NewReverb(cfg.SampleRate, *cfg.Reverb)
		if err != nil {
			return nil, err
		}
		m.reverb = r
	}
	if cfg.EQ {
		m.eq = effects.NewMasterEQ(cfg.SampleRate)
		m.master.Add(m.eq)
	}
	if cfg.Limiter {
		m.master.Add(effects.DefaultLimiter(cfg.SampleRate))
	}
	return m, nil
}

func (m *Mixer) SampleRate() int { return m.cfg.SampleRate }

// SetEQBand sets a master EQ band in dB. It is a no-op without MixerConfig.EQ
// and safe to call while Process runs.
func (m *Mixer) SetEQBand(band int, gainDB float64) {
	if m.eq != nil {
		m.eq.SetGain(band, gainDB)
	}
}

func (m *Mixer) EQBand(band int) float64 {
	if m.eq == nil {
		return 0
	}
	return m.eq.Gain(band)
}

// AddMasterEffect appends an effect at the end of the master chain.
func (m *Mixer) AddMasterEffect(e effects.Effector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.master.Add(e)
}

func (m *Mixer) SetMasterGain(g float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterGain = g
}

func (m *Mixer) voice(h cue.VoiceHandle) *mixVoice {
	for _, v := range m.voices {
		if v.handle == h {
			return v
		}
	}
	return nil
}

func (m *Mixer) CreateVoice(format cue.WaveFormat) (cue.VoiceHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if format.Channels != 1 && format.Channels != 2 {
		return 0, errors.Wrapf(ErrBadFormat, "%d channels", format.Channels)
	}
	if format.SampleRate <= 0 {
		return 0, errors.Wrapf(ErrBadFormat, "sample rate %d", format.SampleRate)
	}
	if m.cfg.MaxVoices > 0 && len(m.voices) >= m.cfg.MaxVoices {
		return 0, errors.Wrapf(ErrOutOfVoices, "limit %d", m.cfg.MaxVoices)
	}
	m.next++
	v := &mixVoice{
		handle: m.next,
		format: format,
		step:   float64(format.SampleRate) / float64(m.cfg.SampleRate),
		ratio:  1,
		gain:   1,
	}
	m.voices = append(m.voices, v)
	return v.handle, nil
}

func (m *Mixer) SubmitAndPlay(h cue.VoiceHandle, data *cue.TrackData, loop bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.voice(h)
	if v == nil {
		return errors.Wrapf(ErrUnknownVoice, "%d", h)
	}
	if data == nil || data.Format != v.format {
		return errors.Wrapf(ErrBadFormat, "voice %d", h)
	}
	v.data = data
	v.pos = 0
	v.loop = loop
	v.playing = true
	v.finished = data.Frames() == 0
	return nil
}

func (m *Mixer) SetVolume(h cue.VoiceHandle, gain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := m.voice(h); v != nil {
		v.gain = gain
	}
}

func (m *Mixer) SetPitch(h cue.VoiceHandle, ratio float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := m.voice(h); v != nil && ratio > 0 && !math.IsInf(ratio, 0) {
		v.ratio = ratio
	}
}

func (m *Mixer) SetFilter(h cue.VoiceHandle, f cuedata.Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.voice(h)
	if v == nil {
		return
	}
	if !f.Enabled {
		v.filterL, v.filterR = nil, nil
		return
	}
	c := filterCoefficients(f, float64(m.cfg.SampleRate))
	if v.filterL == nil {
		v.filterL, v.filterR = biquad.NewSection(c), biquad.NewSection(c)
		return
	}
	// Keep state so cutoff sweeps do not click.
	v.filterL.Coefficients = c
	v.filterR.Coefficients = c
}

func filterCoefficients(f cuedata.Filter, sr float64) biquad.Coefficients {
	q := f.Q
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	freq := math.Min(math.Max(f.Frequency, 10), sr*0.45)
	switch f.Mode {
	case cuedata.FilterHighPass:
		return design.Highpass(freq, q, sr)
	case cuedata.FilterBandPass:
		return design.Bandpass(freq, q, sr)
	case cuedata.FilterNotch:
		return design.Notch(freq, q, sr)
	}
	return design.Lowpass(freq, q, sr)
}

func (m *Mixer) Stop(h cue.VoiceHandle, immediate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.voice(h)
	if v == nil {
		return
	}
	if immediate {
		v.finished = true
		return
	}
	v.loop = false
}

// IsFinished is true for unknown handles.
func (m *Mixer) IsFinished(h cue.VoiceHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.voice(h)
	return v == nil || v.finished
}

func (m *Mixer) DestroyVoice(h cue.VoiceHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.voices {
		if v.handle == h {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}

func (m *Mixer) PauseVoice(h cue.VoiceHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := m.voice(h); v != nil {
		v.paused = true
	}
}

func (m *Mixer) ResumeVoice(h cue.VoiceHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := m.voice(h); v != nil {
		v.paused = false
	}
}

func (m *Mixer) SetReverbSend(h cue.VoiceHandle, gain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := m.voice(h); v != nil {
		v.send = gain
	}
}

// ActiveVoiceCount counts voices that still produce sound.
func (m *Mixer) ActiveVoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.voices {
		if v.playing && !v.finished {
			n++
		}
	}
	return n
}

// Process renders len(dst)/2 stereo frames.
func (m *Mixer) Process(dst []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range dst {
		dst[i] = 0
	}
	frames := len(dst) / 2
	useSends := m.reverb != nil
	if useSends {
		if cap(m.sends) < len(dst) {
			m.sends = make([]float32, len(dst))
		}
		m.sends = m.sends[:len(dst)]
		for i := range m.sends {
			m.sends[i] = 0
		}
	}
	for _, v := range m.voices {
		if !v.playing || v.paused || v.finished {
			continue
		}
		for f := 0; f < frames; f++ {
			l, r, ok := v.next()
			if !ok {
				break
			}
			dst[f*2] += l
			dst[f*2+1] += r
			if useSends && v.send > 0 {
				m.sends[f*2] += l * float32(v.send)
				m.sends[f*2+1] += r * float32(v.send)
			}
		}
	}
	for f := 0; f < frames; f++ {
		l, r := dst[f*2], dst[f*2+1]
		if useSends {
			wl, wr := m.reverb.Process(m.sends[f*2], m.sends[f*2+1])
			l += wl
			r += wr
		}
		l, r = m.master.Process(l, r)
		dst[f*2] = l * float32(m.masterGain)
		dst[f*2+1] = r * float32(m.masterGain)
	}
}

// next returns one output frame and advances the read position.
func (v *mixVoice) next() (float32, float32, bool) {
	n := v.data.Frames()
	if v.pos >= float64(n) {
		if !v.loop {
			v.finished = true
			return 0, 0, false
		}
		v.pos = math.Mod(v.pos, float64(n))
	}
	i := int(v.pos)
	frac := float32(v.pos - float64(i))
	j := i + 1
	if j >= n {
		if v.loop {
			j = 0
		} else {
			j = i
		}
	}
	ch := v.format.Channels
	s := v.data.Samples
	l := s[i*ch] + (s[j*ch]-s[i*ch])*frac
	r := l
	if ch == 2 {
		r = s[i*ch+1] + (s[j*ch+1]-s[i*ch+1])*frac
	}
	if v.filterL != nil {
		l = float32(v.filterL.ProcessSample(float64(l)))
		r = float32(v.filterR.ProcessSample(float64(r)))
	}
	g := float32(v.gain)
	v.pos += v.step * v.ratio
	return l * g, r * g, true
}
