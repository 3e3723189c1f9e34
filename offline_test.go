package xact

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/cbegin/xact-go/internal/audio"
	"github.com/cbegin/xact-go/internal/cue"
	"github.com/cbegin/xact-go/internal/cuedata"
)

func TestRenderCue(t *testing.T) {
	r := newRig(t)
	idx := r.simple(t, 0)
	r.addCue(t, CueDefinitionConfig{Name: "blip", Sounds: []WeightedSound{{Index: idx, Weight: 1}}})

	out, err := RenderCue(r.bank, "blip", testRate, 0.3)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(out) != 2*300 {
		t.Fatalf("rendered %d samples, want 600", len(out))
	}
	if math.Abs(float64(out[0])) < 0.1 {
		t.Fatalf("expected the track at the start, got %v", out[0])
	}
	// Track 0 is 100 ms long.
	for i := 2 * 150; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("expected silence after the track, sample %d = %v", i, out[i])
		}
	}
	if r.engine.ActiveCues() != 0 {
		t.Fatalf("cue should have completed, %d active", r.engine.ActiveCues())
	}

	if _, err := RenderCue(r.bank, "blip", 44100, 0.1); err == nil {
		t.Fatalf("expected error for a mismatched sample rate")
	}
}

func TestOutputStreamsUntilCuesEnd(t *testing.T) {
	r := newRig(t)
	idx := r.simple(t, 0)
	r.addCue(t, CueDefinitionConfig{Name: "blip", Sounds: []WeightedSound{{Index: idx, Weight: 1}}})
	if !r.engine.Idle() {
		t.Fatalf("fresh engine should be idle")
	}
	r.play(t, "blip")
	if r.engine.Idle() {
		t.Fatalf("engine with a playing cue is not idle")
	}

	const tail = 20
	reader := audio.NewStreamReaderTail(Output{Engine: r.engine}, tail)
	p := make([]byte, 10*8)
	frames := 0
	var last []byte
	for reads := 0; ; reads++ {
		if reads > 50 {
			t.Fatalf("stream never ended, %d frames read", frames)
		}
		n, err := reader.Read(p)
		frames += n / 8
		last = append(last[:0], p[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
	}
	// Track 0 is 100 ms long.
	if frames < 100+tail {
		t.Fatalf("stream ended after %d frames, before the cue and its tail", frames)
	}
	for i := 0; i+4 <= len(last); i += 4 {
		if v := math.Float32frombits(binary.LittleEndian.Uint32(last[i:])); v != 0 {
			t.Fatalf("tail should be silent on a dry mixer, got %v", v)
		}
	}
	if !r.engine.Idle() || r.engine.ActiveCues() != 0 {
		t.Fatalf("engine should be idle after the stream ended")
	}
	select {
	case <-reader.Done():
	default:
		t.Fatalf("reader not done after io.EOF")
	}
}

type silentDevice struct{}

func (silentDevice) CreateVoice(WaveFormat) (cue.VoiceHandle, error)       { return 1, nil }
func (silentDevice) SubmitAndPlay(cue.VoiceHandle, *TrackData, bool) error { return nil }
func (silentDevice) SetVolume(cue.VoiceHandle, float64)                    {}
func (silentDevice) SetPitch(cue.VoiceHandle, float64)                     {}
func (silentDevice) SetFilter(cue.VoiceHandle, cuedata.Filter)             {}
func (silentDevice) Stop(cue.VoiceHandle, bool)                            {}
func (silentDevice) IsFinished(cue.VoiceHandle) bool                       { return true }
func (silentDevice) DestroyVoice(cue.VoiceHandle)                          {}

func TestRenderCueNeedsRenderingDevice(t *testing.T) {
	e, err := NewEngine(silentDevice{}, nil, WithSampleRate(testRate))
	if err != nil {
		t.Fatalf("engine failed: %v", err)
	}
	sb, err := NewSoundBank(e, "sfx", nil)
	if err != nil {
		t.Fatalf("sound bank failed: %v", err)
	}
	if _, err := RenderCue(sb, "blip", testRate, 0.1); err == nil {
		t.Fatalf("expected error for a device that does not render")
	}
	buf := []float32{1, 1}
	if err := e.Render(buf); err != nil || buf[0] != 0 {
		t.Fatalf("render on a silent device should clear the buffer, got %v (%v)", buf, err)
	}
}

func TestEncodeWAVFloat32LE(t *testing.T) {
	wav := EncodeWAVFloat32LE([]float32{0.5, -0.25}, 48000, 2)
	if len(wav) != 44+8 {
		t.Fatalf("wav size = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids")
	}
	if got := binary.LittleEndian.Uint16(wav[20:]); got != 3 {
		t.Fatalf("format tag = %d, want 3 (float)", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:]); got != 48000 {
		t.Fatalf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:]); got != 8 {
		t.Fatalf("block align = %d, want 8", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(wav[48:])); got != -0.25 {
		t.Fatalf("second sample = %v", got)
	}
}
