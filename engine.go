// Package xact plays XACT-style cues: sound bank entries parsed from their
// binary form, driven by a cooperative update loop into a voice device.
package xact

import (
	"context"
	"encoding/binary"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cbegin/xact-go/internal/cue"
	"github.com/cbegin/xact-go/internal/cuedata"
	"github.com/cbegin/xact-go/internal/decibel"
	"github.com/cbegin/xact-go/internal/wavebank"
)

var (
	ErrInstanceLimitExceeded = errors.New("xact: cue instance limit exceeded")
	ErrCueNotFound           = errors.New("xact: cue not found")
	ErrEngineClosed          = errors.New("xact: closed")
	ErrNoSound               = errors.New("xact: cue has no sound")
)

type (
	Device        = cue.Device
	TrackResolver = cue.TrackResolver
	TrackData     = cue.TrackData
	WaveFormat    = cue.WaveFormat
	WaveBank      = wavebank.Bank
	RandomSource  = cuedata.RandomSource
	State         = cue.State
)

const (
	StateCreated   = cue.StateCreated
	StatePreparing = cue.StatePreparing
	StatePrepared  = cue.StatePrepared
	StatePlaying   = cue.StatePlaying
	StatePaused    = cue.StatePaused
	StateStopping  = cue.StateStopping
	StateStopped   = cue.StateStopped
)

// EventKind tells what a CueEvent reports.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventMarker
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "Started"
	case EventStopped:
		return "Stopped"
	case EventMarker:
		return "Marker"
	}
	return "Unknown"
}

// CueEvent is delivered on the Watch channel.
type CueEvent struct {
	Kind     EventKind
	Cue      string
	Instance uuid.UUID
	Value    int32 // marker payload
}

type EngineOption func(*engineConfig)

type engineConfig struct {
	sampleRate   int
	random       RandomSource
	logger       *log.Logger
	eventBuffer  int
	masterVolume float64
	byteOrder    binary.ByteOrder
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		sampleRate:   48000,
		byteOrder:    binary.LittleEndian,
		eventBuffer:  8,
		masterVolume: 1,
	}
}

// WithSampleRate sets the rate Render advances the clock by.
func WithSampleRate(rate int) EngineOption {
	return func(cfg *engineConfig) {
		cfg.sampleRate = rate
	}
}

// WithRandomSource replaces the time-seeded source used for sound, track,
// variation and jitter draws.
func WithRandomSource(r RandomSource) EngineOption {
	return func(cfg *engineConfig) {
		cfg.random = r
	}
}

func WithLogger(l *log.Logger) EngineOption {
	return func(cfg *engineConfig) {
		cfg.logger = l
	}
}

// WithEventBuffer sets the capacity of channels returned by Watch.
func WithEventBuffer(n int) EngineOption {
	return func(cfg *engineConfig) {
		cfg.eventBuffer = n
	}
}

// WithByteOrder sets the byte order sound entries are decoded with.
// Content built for big-endian consoles needs binary.BigEndian.
func WithByteOrder(order binary.ByteOrder) EngineOption {
	return func(cfg *engineConfig) {
		cfg.byteOrder = order
	}
}

func WithMasterVolume(v float64) EngineOption {
	return func(cfg *engineConfig) {
		cfg.masterVolume = v
	}
}

type category struct {
	name   string
	volume float64
	paused bool
}

// Engine owns the device, the loaded wave banks and every sound bank. All
// cue work happens inside Update; no goroutines are started.
type Engine struct {
	mu       sync.Mutex
	cfg      engineConfig
	device   Device
	resolver TrackResolver
	banks    *wavebank.Registry
	logger   *log.Logger

	soundBanks map[string]*SoundBank
	active     []*Cue
	categories map[uint16]*category
	globals    map[string]float64
	curves     map[uint32]RPCCurve
	closed     bool

	evMu    sync.Mutex
	pending []CueEvent
	watch   chan CueEvent
}

// NewEngine builds an engine on device. Tracks are looked up in wave banks
// loaded with LoadWaveBank first, then in resolver when it is not nil.
func NewEngine(device Device, resolver TrackResolver, opts ...EngineOption) (*Engine, error) {
	if device == nil {
		return nil, errors.New("xact: device is required")
	}
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.Errorf("xact: invalid sample rate %d", cfg.sampleRate)
	}
	if cfg.random == nil {
		cfg.random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.logger == nil {
		cfg.logger = log.New(io.Discard, "", 0)
	}
	if cfg.masterVolume < 0 {
		cfg.masterVolume = 0
	}
	return &Engine{
		cfg:        cfg,
		device:     device,
		resolver:   resolver,
		banks:      wavebank.NewRegistry(),
		logger:     cfg.logger,
		soundBanks: map[string]*SoundBank{},
		categories: map[uint16]*category{},
		globals:    map[string]float64{},
		curves:     map[uint32]RPCCurve{},
	}, nil
}

func (e *Engine) SampleRate() int { return e.cfg.sampleRate }

// ResolveTrack implements TrackResolver over the loaded wave banks.
func (e *Engine) ResolveTrack(bank string, track uint16) (*TrackData, error) {
	data, err := e.banks.ResolveTrack(bank, track)
	if err == nil || e.resolver == nil || !errors.Is(err, wavebank.ErrBankNotFound) {
		return data, err
	}
	return e.resolver.ResolveTrack(bank, track)
}

// LoadWaveBank makes b's tracks available under b.Name.
func (e *Engine) LoadWaveBank(b *WaveBank) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.banks.Register(b)
	return nil
}

// LoadWaveBankDir decodes every .wav and .ogg file in dir into a bank named
// name, converted to the engine's sample rate.
func (e *Engine) LoadWaveBankDir(ctx context.Context, name, dir string) (*WaveBank, error) {
	b, err := wavebank.LoadDir(ctx, name, dir, e.cfg.sampleRate)
	if err != nil {
		return nil, err
	}
	if err := e.LoadWaveBank(b); err != nil {
		return nil, err
	}
	return b, nil
}

// UnloadWaveBank stops every cue whose sound reads from the bank, then drops
// it.
func (e *Engine) UnloadWaveBank(name string) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.banks.Bank(name); !ok {
		return errors.Wrapf(wavebank.ErrBankNotFound, "%q", name)
	}
	for _, c := range e.active {
		if c.usesWaveBank(name) {
			c.inst.Stop(true)
		}
	}
	e.reap()
	e.banks.Unregister(name)
	return nil
}

// WaveBanks lists the loaded wave bank names.
func (e *Engine) WaveBanks() []string {
	return e.banks.Names()
}

// SetCategory names a category. Categories default to unity volume.
func (e *Engine) SetCategory(index uint16, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.category(index).name = name
}

func (e *Engine) category(index uint16) *category {
	c, ok := e.categories[index]
	if !ok {
		c = &category{volume: 1}
		e.categories[index] = c
	}
	return c
}

// CategoryIndex finds a category by name.
func (e *Engine) CategoryIndex(name string) (uint16, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.categories {
		if c.name == name {
			return i, true
		}
	}
	return 0, false
}

// SetCategoryVolume sets a linear gain for every cue in the category.
func (e *Engine) SetCategoryVolume(index uint16, volume float64) {
	if volume < 0 {
		volume = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.category(index).volume = volume
	for _, c := range e.active {
		if c.def.Category() == index {
			c.inst.SetMix(e.mixFor(c))
		}
	}
}

func (e *Engine) PauseCategory(index uint16, paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.category(index).paused = paused
	for _, c := range e.active {
		if c.def.Category() != index {
			continue
		}
		if paused {
			c.inst.Pause()
		} else {
			c.inst.Resume()
		}
	}
}

func (e *Engine) StopCategory(index uint16, immediate bool) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.soundBanks {
		b.dropQueued(func(c *Cue) bool { return c.def.Category() == index })
	}
	for _, c := range e.active {
		if c.def.Category() == index {
			c.inst.Stop(immediate)
		}
	}
	e.reap()
}

func (e *Engine) SetGlobalVariable(name string, value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = value
}

func (e *Engine) GlobalVariable(name string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.globals[name]
}

// AddRPCCurve registers a curve that sounds reference by id.
func (e *Engine) AddRPCCurve(id uint32, curve RPCCurve) error {
	if curve.Variable == "" {
		return errors.Errorf("xact: rpc curve %d has no variable", id)
	}
	if len(curve.Points) == 0 {
		return errors.Errorf("xact: rpc curve %d has no points", id)
	}
	pts := append([]RPCPoint(nil), curve.Points...)
	sort.SliceStable(pts, func(a, b int) bool { return pts[a].X < pts[b].X })
	curve.Points = pts
	e.mu.Lock()
	defer e.mu.Unlock()
	e.curves[id] = curve
	return nil
}

// SetMasterVolume scales every cue. 1 is unity.
func (e *Engine) SetMasterVolume(v float64) {
	if v < 0 {
		v = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.masterVolume = v
	for _, c := range e.active {
		c.inst.SetMix(e.mixFor(c))
	}
}

func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.masterVolume
}

// Watch returns a channel receiving cue events. Sends never block; events
// are dropped when the channel is full. Only the most recent channel
// receives events.
func (e *Engine) Watch() <-chan CueEvent {
	ch := make(chan CueEvent, e.cfg.eventBuffer)
	e.evMu.Lock()
	e.watch = ch
	e.evMu.Unlock()
	return ch
}

func (e *Engine) post(ev CueEvent) {
	e.evMu.Lock()
	e.pending = append(e.pending, ev)
	e.evMu.Unlock()
}

func (e *Engine) flush() {
	e.evMu.Lock()
	pending := e.pending
	e.pending = nil
	ch := e.watch
	e.evMu.Unlock()
	if ch == nil {
		return
	}
	for _, ev := range pending {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Update advances every playing cue by elapsed, starts queued cues whose
// slot freed up and delivers pending events.
func (e *Engine) Update(elapsed time.Duration) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	for _, c := range append([]*Cue(nil), e.active...) {
		c.inst.SetMix(e.mixFor(c))
		c.inst.Tick(ms)
	}
	e.reap()
	names := make([]string, 0, len(e.soundBanks))
	for n := range e.soundBanks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		e.soundBanks[n].startQueued()
	}
	return nil
}

// Render advances the engine by the duration of dst and, when the device
// renders audio itself, fills dst with interleaved stereo frames.
func (e *Engine) Render(dst []float32) error {
	frames := len(dst) / 2
	d := time.Duration(float64(frames) / float64(e.cfg.sampleRate) * float64(time.Second))
	if err := e.Update(d); err != nil {
		return err
	}
	if r, ok := e.device.(interface{ Process([]float32) }); ok {
		r.Process(dst)
		return nil
	}
	for i := range dst {
		dst[i] = 0
	}
	return nil
}

// ActiveCues counts cues holding an instance.
func (e *Engine) ActiveCues() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Idle reports that no cue is playing, stopping or queued.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.active) > 0 {
		return false
	}
	for _, b := range e.soundBanks {
		if len(b.queue) > 0 {
			return false
		}
	}
	return true
}

// Close stops every cue immediately and closes every sound bank. The device
// is closed when it implements io.Closer.
func (e *Engine) Close() error {
	defer e.flush()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	for _, b := range e.soundBanks {
		b.closeLocked()
	}
	for _, c := range e.active {
		c.inst.Stop(true)
	}
	e.active = nil
	e.soundBanks = map[string]*SoundBank{}
	e.closed = true
	e.mu.Unlock()
	if cl, ok := e.device.(io.Closer); ok {
		return errors.Wrap(cl.Close(), "xact: close device")
	}
	return nil
}

// reap drops cues whose instance has stopped.
func (e *Engine) reap() {
	kept := e.active[:0]
	for _, c := range e.active {
		if c.inst.State() != StateStopped {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(e.active); i++ {
		e.active[i] = nil
	}
	e.active = kept
}

// mixFor folds master, category, cue volume and the sound's RPC curves into
// the instance gain stage.
func (e *Engine) mixFor(c *Cue) cue.Mix {
	m := cue.Mix{Gain: e.cfg.masterVolume * c.volume}
	if cat, ok := e.categories[c.def.Category()]; ok {
		m.Gain *= cat.volume
	}
	s := c.inst.Sound()
	if s == nil {
		return m
	}
	for _, id := range s.Data.RPCCurves {
		curve, ok := e.curves[id]
		if !ok {
			continue
		}
		y := curve.Evaluate(c.variable(curve.Variable))
		switch curve.Parameter {
		case RPCVolume:
			m.Gain *= decibel.CalculateAmplitudeRatio(y)
		case RPCPitch:
			m.PitchCents += y
		case RPCReverbSend:
			m.ReverbSend = decibel.CalculateReverbAmplitudeRatio(y)
		case RPCFilterFrequency:
			m.FilterFrequency = y
		}
	}
	return m
}

func (e *Engine) instanceOptions(c *Cue) cue.Options {
	return cue.Options{
		Random: e.cfg.random,
		Logger: e.logger,
		OnMarker: func(_ *cue.Instance, v int32) {
			e.post(CueEvent{Kind: EventMarker, Cue: c.def.Name(), Instance: c.id, Value: v})
		},
		OnStop: func(*cue.Instance) {
			e.post(CueEvent{Kind: EventStopped, Cue: c.def.Name(), Instance: c.id})
		},
	}
}
