package xact

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cbegin/xact-go/internal/cue"
)

// Cue is one play of a cue definition. A Cue plays at most once; get a new
// one from the sound bank to play again.
type Cue struct {
	bank *SoundBank
	def  *cue.Definition
	id   uuid.UUID

	vars      map[string]float64
	volume    float64
	inst      *cue.Instance
	queued    bool
	cancelled bool
}

func (c *Cue) Name() string { return c.def.Name() }

// ID identifies the cue in CueEvents.
func (c *Cue) ID() uuid.UUID { return c.id }

// Play starts the cue, or queues it when its definition is at the instance
// limit with the Queue behavior.
func (c *Cue) Play() error {
	e := c.bank.engine
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if c.inst != nil || c.queued || c.cancelled {
		return errors.Errorf("xact: cue %q already played", c.def.Name())
	}
	return c.bank.play(c)
}

func (c *Cue) Pause() {
	e := c.bank.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.inst != nil {
		c.inst.Pause()
	}
}

func (c *Cue) Resume() {
	e := c.bank.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.inst == nil {
		return
	}
	if cat, ok := e.categories[c.def.Category()]; ok && cat.paused {
		return
	}
	c.inst.Resume()
}

// Stop ends the cue. A queued cue is dropped from the queue.
func (c *Cue) Stop(immediate bool) {
	e := c.bank.engine
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.queued {
		c.bank.dropQueued(func(q *Cue) bool { return q == c })
		return
	}
	if c.inst == nil {
		c.cancelled = true
		return
	}
	c.inst.Stop(immediate)
	e.reap()
}

// SetVariable sets a cue-local variable, shadowing the global of the same
// name.
func (c *Cue) SetVariable(name string, value float64) {
	e := c.bank.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	c.vars[name] = value
	if c.inst != nil {
		c.inst.SetMix(e.mixFor(c))
	}
}

// Variable returns the cue-local value or the global one.
func (c *Cue) Variable(name string) float64 {
	e := c.bank.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.variable(name)
}

func (c *Cue) variable(name string) float64 {
	if v, ok := c.vars[name]; ok {
		return v
	}
	return c.bank.engine.globals[name]
}

// SetVolume sets the cue's linear gain.
func (c *Cue) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	e := c.bank.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	c.volume = v
	if c.inst != nil {
		c.inst.SetMix(e.mixFor(c))
	}
}

func (c *Cue) Volume() float64 {
	e := c.bank.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.volume
}

// State reports Preparing while queued and Prepared before Play.
func (c *Cue) State() State {
	e := c.bank.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case c.inst != nil:
		return c.inst.State()
	case c.queued:
		return StatePreparing
	case c.cancelled:
		return StateStopped
	}
	return StatePrepared
}

func (c *Cue) IsPlaying() bool {
	return c.State() == StatePlaying
}

// Tracks reports the track index each PlayWave event last chose, by clip
// then event. It is nil before the cue starts.
func (c *Cue) Tracks() [][]int {
	e := c.bank.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.inst == nil {
		return nil
	}
	return c.inst.Tracks()
}

func (c *Cue) usesWaveBank(name string) bool {
	s := c.inst.Sound()
	if s == nil {
		return false
	}
	for i, n := range c.def.WaveBanks() {
		if n == name && s.UsesWaveBank(uint8(i)) {
			return true
		}
	}
	return false
}
