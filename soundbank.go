package xact

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cbegin/xact-go/internal/cue"
	"github.com/cbegin/xact-go/internal/cuedata"
)

type MaxInstanceBehavior = cue.MaxInstanceBehavior

const (
	BehaviorFail                  = cue.BehaviorFail
	BehaviorQueue                 = cue.BehaviorQueue
	BehaviorReplaceOldest         = cue.BehaviorReplaceOldest
	BehaviorReplaceQuietest       = cue.BehaviorReplaceQuietest
	BehaviorReplaceLowestPriority = cue.BehaviorReplaceLowestPriority
)

// WeightedSound refers to a sound entry added with AddSoundEntry.
type WeightedSound struct {
	Index  int
	Weight float64
}

type CueDefinitionConfig struct {
	Name   string
	Sounds []WeightedSound
	// UserControlled cues pick their sound from ControlVariable instead of a
	// random draw.
	UserControlled  bool
	ControlVariable string
	Category        uint16
	InstanceLimit   int // 0 means unlimited
	Behavior        MaxInstanceBehavior
	FadeInMs        uint16
	FadeOutMs       uint16
}

// SoundBank holds parsed sound entries and the cues built on them. It
// enforces each cue's instance limit before an instance is created.
type SoundBank struct {
	engine    *Engine
	name      string
	waveBanks []string
	parser    *cuedata.Parser

	sounds []*cue.Sound
	cues   map[string]*cue.Definition
	queue  []*Cue
	closed bool
}

// NewSoundBank registers an empty bank with e. waveBanks maps the wave bank
// indices used by sound entries onto loaded wave bank names.
func NewSoundBank(e *Engine, name string, waveBanks []string) (*SoundBank, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if _, dup := e.soundBanks[name]; dup {
		return nil, errors.Errorf("xact: sound bank %q already exists", name)
	}
	b := &SoundBank{
		engine:    e,
		name:      name,
		waveBanks: append([]string(nil), waveBanks...),
		parser:    cuedata.NewParser(cuedata.ParserConfig{ByteOrder: e.cfg.byteOrder}),
		cues:      map[string]*cue.Definition{},
	}
	e.soundBanks[name] = b
	return b, nil
}

func (b *SoundBank) Name() string { return b.name }

// AddSoundEntry parses the sound entry at offset in raw and returns its
// index for use in CueDefinitionConfig.
func (b *SoundBank) AddSoundEntry(raw []byte, offset int64) (int, error) {
	s, err := b.parser.ParseSound(raw, offset)
	if err != nil {
		return 0, errors.Wrapf(err, "sound bank %q", b.name)
	}
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	if b.closed {
		return 0, ErrEngineClosed
	}
	b.sounds = append(b.sounds, cue.NewSound(s))
	return len(b.sounds) - 1, nil
}

func (b *SoundBank) SoundCount() int {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	return len(b.sounds)
}

// AddCue defines a cue over previously added sound entries.
func (b *SoundBank) AddCue(cfg CueDefinitionConfig) error {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	if b.closed {
		return ErrEngineClosed
	}
	if _, dup := b.cues[cfg.Name]; dup {
		return errors.Errorf("xact: cue %q already defined in %q", cfg.Name, b.name)
	}
	if len(cfg.Sounds) == 0 {
		return errors.Wrapf(ErrNoSound, "%q", cfg.Name)
	}
	sounds := make([]cue.WeightedSound, len(cfg.Sounds))
	for i, ws := range cfg.Sounds {
		if ws.Index < 0 || ws.Index >= len(b.sounds) {
			return errors.Wrapf(ErrNoSound, "cue %q: sound index %d out of %d", cfg.Name, ws.Index, len(b.sounds))
		}
		sounds[i] = cue.WeightedSound{Sound: b.sounds[ws.Index], Weight: ws.Weight}
	}
	def, err := cue.NewDefinition(cue.Config{
		Name:            cfg.Name,
		Sounds:          sounds,
		UserControlled:  cfg.UserControlled,
		ControlVariable: cfg.ControlVariable,
		Category:        cfg.Category,
		InstanceLimit:   cfg.InstanceLimit,
		Behavior:        cfg.Behavior,
		FadeInMs:        cfg.FadeInMs,
		FadeOutMs:       cfg.FadeOutMs,
		WaveBanks:       b.waveBanks,
	})
	if err != nil {
		return err
	}
	b.cues[cfg.Name] = def
	return nil
}

// CueNames lists the defined cues in sorted order.
func (b *SoundBank) CueNames() []string {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	names := make([]string, 0, len(b.cues))
	for n := range b.cues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetCue returns a prepared cue that has not started playing.
func (b *SoundBank) GetCue(name string) (*Cue, error) {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	if b.closed {
		return nil, ErrEngineClosed
	}
	def, ok := b.cues[name]
	if !ok {
		return nil, errors.Wrapf(ErrCueNotFound, "%q in %q", name, b.name)
	}
	return &Cue{bank: b, def: def, id: uuid.New(), volume: 1, vars: map[string]float64{}}, nil
}

// PlayCue is GetCue followed by Play.
func (b *SoundBank) PlayCue(name string) (*Cue, error) {
	c, err := b.GetCue(name)
	if err != nil {
		return nil, err
	}
	if err := c.Play(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close stops every instance of the bank's cues immediately, drops queued
// plays and removes the bank from the engine.
func (b *SoundBank) Close() error {
	e := b.engine
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closeLocked()
	delete(e.soundBanks, b.name)
	return nil
}

func (b *SoundBank) closeLocked() {
	b.closed = true
	b.dropQueued(func(*Cue) bool { return true })
	for _, c := range b.engine.active {
		if c.bank == b {
			c.inst.Stop(true)
		}
	}
	b.engine.reap()
}

// slotsInUse counts instances of def that are not already on their way out.
func (b *SoundBank) slotsInUse(def *cue.Definition) int {
	n := 0
	for _, c := range b.engine.active {
		if c.def != def {
			continue
		}
		if s := c.inst.State(); s != StateStopping && s != StateStopped {
			n++
		}
	}
	return n
}

// play applies the instance limit policy and starts c. Called with the
// engine lock held.
func (b *SoundBank) play(c *Cue) error {
	if b.closed {
		return ErrEngineClosed
	}
	def := c.def
	if limit := def.InstanceLimit(); limit > 0 && b.slotsInUse(def) >= limit {
		switch def.Behavior() {
		case BehaviorFail:
			return errors.Wrapf(ErrInstanceLimitExceeded, "cue %q limit %d", def.Name(), limit)
		case BehaviorQueue:
			c.queued = true
			b.queue = append(b.queue, c)
			return nil
		default:
			victim := b.victim(def)
			if victim == nil {
				return errors.Wrapf(ErrInstanceLimitExceeded, "cue %q limit %d", def.Name(), limit)
			}
			b.engine.logger.Printf("cue %s: limit %d reached, replacing %s instance %s", def.Name(), limit, def.Behavior(), victim.id)
			victim.inst.Stop(def.FadeOutMs() == 0)
			b.engine.reap()
		}
	}
	return b.start(c)
}

// victim picks the instance the definition's behavior replaces. Ties go to
// the oldest instance.
func (b *SoundBank) victim(def *cue.Definition) *Cue {
	var best *Cue
	for _, c := range b.engine.active {
		if c.def != def {
			continue
		}
		if s := c.inst.State(); s == StateStopping || s == StateStopped {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		switch def.Behavior() {
		case BehaviorReplaceQuietest:
			if c.inst.Loudness() < best.inst.Loudness() {
				best = c
			}
		case BehaviorReplaceLowestPriority:
			// Higher values are less important.
			if c.inst.Priority() > best.inst.Priority() {
				best = c
			}
		}
	}
	return best
}

func (b *SoundBank) start(c *Cue) error {
	e := b.engine
	def := c.def
	var control *float64
	if def.UserControlled() {
		v := c.variable(def.ControlVariable())
		control = &v
	}
	opts := e.instanceOptions(c)
	if cat, ok := e.categories[def.Category()]; ok && cat.paused {
		opts.StartPaused = true
	}
	inst, err := def.Instantiate(context.Background(), e.device, e, opts, control)
	if err != nil {
		return err
	}
	c.inst = inst
	e.active = append(e.active, c)
	inst.SetMix(e.mixFor(c))
	e.post(CueEvent{Kind: EventStarted, Cue: def.Name(), Instance: c.id})
	inst.Play()
	return nil
}

// startQueued starts queued cues, oldest first, while their definition has
// a free slot.
func (b *SoundBank) startQueued() {
	kept := b.queue[:0]
	for _, c := range b.queue {
		if limit := c.def.InstanceLimit(); limit > 0 && b.slotsInUse(c.def) >= limit {
			kept = append(kept, c)
			continue
		}
		c.queued = false
		if err := b.start(c); err != nil {
			b.engine.logger.Printf("cue %s: queued start: %v", c.def.Name(), err)
			c.cancelled = true
		}
	}
	for i := len(kept); i < len(b.queue); i++ {
		b.queue[i] = nil
	}
	b.queue = kept
}

func (b *SoundBank) dropQueued(match func(*Cue) bool) {
	kept := b.queue[:0]
	for _, c := range b.queue {
		if match(c) {
			c.queued = false
			c.cancelled = true
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(b.queue); i++ {
		b.queue[i] = nil
	}
	b.queue = kept
}
