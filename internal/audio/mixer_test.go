package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/cbegin/xact-go/internal/cue"
	"github.com/cbegin/xact-go/internal/cuedata"
)

func dryMixer(t *testing.T, sampleRate int) *Mixer {
	t.Helper()
	m, err := NewMixer(MixerConfig{SampleRate: sampleRate})
	if err != nil {
		t.Fatalf("mixer failed: %v", err)
	}
	return m
}

func constTrack(rate, frames int, v float32) *cue.TrackData {
	s := make([]float32, frames)
	for i := range s {
		s[i] = v
	}
	return &cue.TrackData{Format: cue.WaveFormat{SampleRate: rate, Channels: 1}, Samples: s}
}

func startVoice(t *testing.T, m *Mixer, td *cue.TrackData, loop bool) cue.VoiceHandle {
	t.Helper()
	h, err := m.CreateVoice(td.Format)
	if err != nil {
		t.Fatalf("create voice failed: %v", err)
	}
	if err := m.SubmitAndPlay(h, td, loop); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return h
}

func TestMixerAppliesGainAndSums(t *testing.T) {
	m := dryMixer(t, 100)
	a := startVoice(t, m, constTrack(100, 10, 0.5), false)
	b := startVoice(t, m, constTrack(100, 10, 0.25), false)
	m.SetVolume(a, 0.5)
	buf := make([]float32, 8)
	m.Process(buf)
	for i, v := range buf {
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Fatalf("sample %d = %v, want 0.5", i, v)
		}
	}
	m.DestroyVoice(b)
	m.Process(buf)
	if math.Abs(float64(buf[0])-0.25) > 1e-6 {
		t.Fatalf("expected only voice a, got %v", buf[0])
	}
}

func TestMixerFinishesAndLoops(t *testing.T) {
	m := dryMixer(t, 100)
	once := startVoice(t, m, constTrack(100, 4, 1), false)
	looped := startVoice(t, m, constTrack(100, 4, 1), true)
	buf := make([]float32, 2*10)
	m.Process(buf)
	if !m.IsFinished(once) {
		t.Fatalf("one-shot voice should finish")
	}
	if m.IsFinished(looped) {
		t.Fatalf("looped voice must keep playing")
	}
	if buf[2*9] != 1 {
		t.Fatalf("looped voice should still sound at frame 9, got %v", buf[2*9])
	}
	m.Stop(looped, false)
	m.Process(buf)
	if !m.IsFinished(looped) {
		t.Fatalf("graceful stop should exit the loop")
	}
	if m.ActiveVoiceCount() != 0 {
		t.Fatalf("expected no active voices, got %d", m.ActiveVoiceCount())
	}
}

func TestMixerPitchAndResampling(t *testing.T) {
	m := dryMixer(t, 100)
	up := startVoice(t, m, constTrack(100, 10, 1), false)
	m.SetPitch(up, 2)
	slow := startVoice(t, m, constTrack(50, 10, 1), false)
	buf := make([]float32, 2*6)
	m.Process(buf)
	if !m.IsFinished(up) {
		t.Fatalf("octave-up voice should finish in 5 frames")
	}
	m.Process(make([]float32, 2*13))
	if m.IsFinished(slow) {
		t.Fatalf("half-rate track should last 20 output frames")
	}
	m.Process(make([]float32, 2*2))
	if !m.IsFinished(slow) {
		t.Fatalf("half-rate track should be done after 21 frames")
	}
}

func TestMixerImmediateStopAndUnknownHandles(t *testing.T) {
	m := dryMixer(t, 100)
	h := startVoice(t, m, constTrack(100, 100, 1), true)
	m.Stop(h, true)
	if !m.IsFinished(h) {
		t.Fatalf("immediate stop should finish the voice")
	}
	buf := make([]float32, 4)
	m.Process(buf)
	if buf[0] != 0 {
		t.Fatalf("stopped voice must be silent")
	}
	if !m.IsFinished(999) {
		t.Fatalf("unknown voice should report finished")
	}
	if err := m.SubmitAndPlay(999, constTrack(100, 1, 1), false); !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
}

func TestMixerVoiceLimitAndFormats(t *testing.T) {
	m, err := NewMixer(MixerConfig{SampleRate: 100, MaxVoices: 1})
	if err != nil {
		t.Fatalf("mixer failed: %v", err)
	}
	h := startVoice(t, m, constTrack(100, 1, 1), false)
	if _, err := m.CreateVoice(cue.WaveFormat{SampleRate: 100, Channels: 1}); !errors.Is(err, ErrOutOfVoices) {
		t.Fatalf("expected ErrOutOfVoices, got %v", err)
	}
	m.DestroyVoice(h)
	if _, err := m.CreateVoice(cue.WaveFormat{SampleRate: 100, Channels: 6}); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("expected ErrBadFormat, got %v", err)
	}
	if _, err := NewMixer(MixerConfig{}); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestMixerPauseHoldsPosition(t *testing.T) {
	m := dryMixer(t, 100)
	h := startVoice(t, m, constTrack(100, 4, 1), false)
	m.PauseVoice(h)
	m.Process(make([]float32, 2*10))
	if m.IsFinished(h) {
		t.Fatalf("paused voice must not advance")
	}
	m.ResumeVoice(h)
	m.Process(make([]float32, 2*5))
	if !m.IsFinished(h) {
		t.Fatalf("resumed voice should finish")
	}
}

func TestMixerLowPassAttenuatesNyquist(t *testing.T) {
	m := dryMixer(t, 44100)
	s := make([]float32, 4096)
	for i := range s {
		s[i] = 1
		if i%2 == 1 {
			s[i] = -1
		}
	}
	h := startVoice(t, m, &cue.TrackData{Format: cue.WaveFormat{SampleRate: 44100, Channels: 1}, Samples: s}, true)
	m.SetFilter(h, cuedata.Filter{Enabled: true, Mode: cuedata.FilterLowPass, Frequency: 500, Q: 0.707})
	buf := make([]float32, 2*2048)
	m.Process(buf)
	peak := 0.0
	for _, v := range buf[2*1024:] {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak > 0.05 {
		t.Fatalf("low-pass at 500 Hz should remove a Nyquist tone, peak %v", peak)
	}
	m.SetFilter(h, cuedata.Filter{})
	m.Process(buf)
	if math.Abs(float64(buf[0])) < 0.9 {
		t.Fatalf("disabled filter should pass the tone, got %v", buf[0])
	}
}

func TestMixerReverbSend(t *testing.T) {
	m, err := NewMixer(DefaultMixerConfig(44100))
	if err != nil {
		t.Fatalf("mixer failed: %v", err)
	}
	h := startVoice(t, m, constTrack(44100, 64, 0.5), false)
	m.SetReverbSend(h, 1)
	m.Process(make([]float32, 2*64))
	buf := make([]float32, 2*8192)
	m.Process(buf)
	tail := 0.0
	for _, v := range buf {
		tail = math.Max(tail, math.Abs(float64(v)))
	}
	if tail < 1e-5 {
		t.Fatalf("expected a reverb tail after the voice ended, peak %v", tail)
	}
}

type rampSource struct {
	n    float32
	done bool
}

func (s *rampSource) Process(dst []float32) {
	for i := range dst {
		s.n++
		dst[i] = s.n
	}
}

func (s *rampSource) Finished() bool { return s.done }

func TestStreamReaderEncodesFloat32(t *testing.T) {
	src := &rampSource{}
	r := NewStreamReader(src)
	p := make([]byte, 19)
	n, err := r.Read(p)
	if err != nil || n != 16 {
		t.Fatalf("expected 16 bytes, got %d (%v)", n, err)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(p[4:])); got != 2 {
		t.Fatalf("second sample = %v, want 2", got)
	}
	src.done = true
	if _, err := r.Read(p); err != io.EOF {
		t.Fatalf("expected io.EOF once finished, got %v", err)
	}
	if n, _ := r.Read(p[:7]); n != 0 {
		t.Fatalf("short buffer should read nothing")
	}
}

func TestStreamReaderRendersTailBeforeEOF(t *testing.T) {
	src := &rampSource{}
	r := NewStreamReaderTail(src, 5)
	p := make([]byte, 8*8)
	src.done = true
	n, err := r.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("finishing read should still succeed, got %d (%v)", n, err)
	}
	select {
	case <-r.Done():
		t.Fatalf("done before the tail was rendered")
	default:
	}
	// Five tail frames remain: the next read is cut short.
	n, err = r.Read(p)
	if err != io.EOF || n != 5*8 {
		t.Fatalf("expected 40 bytes and io.EOF, got %d (%v)", n, err)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(p[0:])); got != 17 {
		t.Fatalf("tail continues the source, first sample = %v, want 17", got)
	}
	select {
	case <-r.Done():
	default:
		t.Fatalf("done not closed after io.EOF")
	}
	if n, err := r.Read(p); n != 0 || err != io.EOF {
		t.Fatalf("reads after the end should return io.EOF, got %d (%v)", n, err)
	}
}
