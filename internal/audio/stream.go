package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/pkg/errors"
)

// SampleSource fills an interleaved stereo float32 buffer.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource reports when it has nothing left to play.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// StreamReader exposes a SampleSource as 32-bit float little-endian PCM for
// ebiten's F32 players. Once a FinishingSource reports Finished the reader
// renders tail more frames, so reverb and filter tails ring out, and then
// returns io.EOF.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32

	tail      int
	remaining int
	draining  bool
	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamReader(source SampleSource) *StreamReader {
	return NewStreamReaderTail(source, 0)
}

// NewStreamReaderTail keeps rendering tailFrames frames after the source
// finishes.
func NewStreamReaderTail(source SampleSource, tailFrames int) *StreamReader {
	if tailFrames < 0 {
		tailFrames = 0
	}
	return &StreamReader{source: source, tail: tailFrames, done: make(chan struct{})}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return 0, io.EOF
	default:
	}

	const frameBytes = 8
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if r.draining && frames > r.remaining {
		frames = r.remaining
	}
	n := frames * 2
	if cap(r.buf) < n {
		r.buf = make([]float32, n)
	}
	r.buf = r.buf[:n]
	r.source.Process(r.buf)
	for i, s := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}

	if r.draining {
		r.remaining -= frames
	} else if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		r.draining = true
		r.remaining = r.tail
	}
	if r.draining && r.remaining <= 0 {
		r.finish()
		return frames * frameBytes, io.EOF
	}
	return frames * frameBytes, nil
}

func (r *StreamReader) finish() {
	r.closeOnce.Do(func() { close(r.done) })
}

// Done is closed when the stream has returned io.EOF or was closed.
func (r *StreamReader) Done() <-chan struct{} { return r.done }

func (r *StreamReader) Close() error {
	r.finish()
	return nil
}

// Player streams a SampleSource to the audio device through ebiten.
type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	contextOnce       sync.Once
	sharedContext     *ebitaudio.Context
	sharedContextRate int
)

// ebiten allows a single audio context per process.
func audioContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		sharedContextRate = sampleRate
		sharedContext = ebitaudio.NewContext(sampleRate)
	})
	if sharedContextRate != sampleRate {
		return nil, errors.Errorf("audio context already running at %d Hz, asked for %d Hz", sharedContextRate, sampleRate)
	}
	return sharedContext, nil
}

type PlayerConfig struct {
	// BufferSize of zero keeps ebiten's default latency.
	BufferSize time.Duration
	// Tail is rendered after a FinishingSource finishes.
	Tail time.Duration
}

// NewPlayer opens a realtime player.
func NewPlayer(sampleRate int, source SampleSource, cfg PlayerConfig) (*Player, error) {
	ctx, err := audioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	tail := int(cfg.Tail.Seconds() * float64(sampleRate))
	reader := NewStreamReaderTail(source, tail)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, errors.Wrap(err, "audio: new player")
	}
	if cfg.BufferSize > 0 {
		pl.SetBufferSize(cfg.BufferSize)
	}
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Play()           { p.player.Play() }
func (p *Player) Pause()          { p.player.Pause() }
func (p *Player) IsPlaying() bool { return p.player.IsPlaying() }

// SetVolume sets the output volume in [0, 1].
func (p *Player) SetVolume(v float64) { p.player.SetVolume(v) }

// Done is closed once a finishing source and its tail have been streamed.
func (p *Player) Done() <-chan struct{} { return p.reader.Done() }

// Position is what the listener has heard so far.
func (p *Player) Position() time.Duration { return p.player.Position() }

func (p *Player) Close() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return errors.Wrap(err, "audio: close player")
	}
	return p.reader.Close()
}
