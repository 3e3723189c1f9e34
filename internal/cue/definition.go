package cue

import (
	"context"
	"io"
	"log"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/cbegin/xact-go/internal/cuedata"
)

// MaxInstanceBehavior is what the owning bank does when a cue is at its
// instance limit.
type MaxInstanceBehavior uint8

const (
	BehaviorFail MaxInstanceBehavior = iota
	BehaviorQueue
	BehaviorReplaceOldest
	BehaviorReplaceQuietest
	BehaviorReplaceLowestPriority
)

func (b MaxInstanceBehavior) String() string {
	switch b {
	case BehaviorFail:
		return "Fail"
	case BehaviorQueue:
		return "Queue"
	case BehaviorReplaceOldest:
		return "ReplaceOldest"
	case BehaviorReplaceQuietest:
		return "ReplaceQuietest"
	case BehaviorReplaceLowestPriority:
		return "ReplaceLowestPriority"
	}
	return "Unknown"
}

// WeightedSound is one alternative of a cue. Weight is its share of the
// draw in [0, 1]; weights summing below 1 leave a residual that plays
// nothing.
type WeightedSound struct {
	Sound  *Sound
	Weight float64
}

type Config struct {
	Name            string
	Sounds          []WeightedSound
	UserControlled  bool
	ControlVariable string
	Category        uint16
	InstanceLimit   int // 0 means unlimited
	Behavior        MaxInstanceBehavior
	FadeInMs        uint16
	FadeOutMs       uint16
	// WaveBanks maps a sound entry's bank index to a resolver name.
	WaveBanks []string
}

type soundEntry struct {
	sound      *Sound
	cumulative float64
}

// Definition is a cue as authored: weighted Sound alternatives and the
// instance-limit settings. Policy is enforced by the caller before
// Instantiate.
type Definition struct {
	cfg    Config
	sounds []soundEntry

	mu        sync.Mutex
	instances []*Instance
}

func NewDefinition(cfg Config) (*Definition, error) {
	if cfg.Name == "" {
		return nil, errors.New("cue: definition needs a name")
	}
	total := 0.0
	for _, ws := range cfg.Sounds {
		if ws.Sound == nil || ws.Sound.Data == nil {
			return nil, errors.Errorf("cue %q: nil sound", cfg.Name)
		}
		if ws.Weight < 0 || math.IsNaN(ws.Weight) {
			return nil, errors.Errorf("cue %q: invalid weight %v", cfg.Name, ws.Weight)
		}
		total += ws.Weight
	}
	if total > 1+1e-9 {
		return nil, errors.Errorf("cue %q: weights sum to %v, above 1", cfg.Name, total)
	}
	d := &Definition{cfg: cfg, sounds: make([]soundEntry, len(cfg.Sounds))}
	cum := 0.0
	for i, ws := range cfg.Sounds {
		w := ws.Weight
		if total == 0 {
			w = 1 / float64(len(cfg.Sounds))
		}
		cum += w
		d.sounds[i] = soundEntry{sound: ws.Sound, cumulative: cum}
	}
	if n := len(d.sounds); n > 0 && (total == 0 || math.Abs(total-1) < 1e-9) {
		d.sounds[n-1].cumulative = 1
	}
	return d, nil
}

func (d *Definition) Name() string                  { return d.cfg.Name }
func (d *Definition) Category() uint16              { return d.cfg.Category }
func (d *Definition) InstanceLimit() int            { return d.cfg.InstanceLimit }
func (d *Definition) Behavior() MaxInstanceBehavior { return d.cfg.Behavior }
func (d *Definition) FadeInMs() uint16              { return d.cfg.FadeInMs }
func (d *Definition) FadeOutMs() uint16             { return d.cfg.FadeOutMs }
func (d *Definition) UserControlled() bool          { return d.cfg.UserControlled }
func (d *Definition) ControlVariable() string       { return d.cfg.ControlVariable }
func (d *Definition) WaveBanks() []string           { return d.cfg.WaveBanks }

// Sounds returns every alternative in authored order.
func (d *Definition) Sounds() []*Sound {
	out := make([]*Sound, len(d.sounds))
	for i, e := range d.sounds {
		out[i] = e.sound
	}
	return out
}

// SelectSound picks an alternative. A user-controlled cue uses control as the
// draw position; otherwise one value is drawn from rnd. nil is the residual.
func (d *Definition) SelectSound(rnd cuedata.RandomSource, control *float64) *Sound {
	var draw float64
	if d.cfg.UserControlled && control != nil {
		draw = *control
	} else if rnd != nil {
		draw = rnd.Float64()
	}
	if draw < 0 || math.IsNaN(draw) {
		draw = 0
	}
	for _, e := range d.sounds {
		if draw < e.cumulative {
			return e.sound
		}
	}
	// A control value of exactly 1 still maps onto the last sound.
	if n := len(d.sounds); n > 0 && d.sounds[n-1].cumulative >= 1 {
		return d.sounds[n-1].sound
	}
	return nil
}

// Options configures an Instance. Callbacks run synchronously inside the
// Instance's own calls and must not call back into it.
type Options struct {
	Random   cuedata.RandomSource
	Logger   *log.Logger
	OnMarker func(inst *Instance, value int32)
	OnStop   func(inst *Instance)

	// StartPaused makes Play schedule the timeline without firing it.
	StartPaused bool
}

// Instantiate selects a Sound, acquires its tracks and returns an instance
// in the Prepared state. A residual selection yields an instance with no
// Sound, which stops as soon as it is played.
func (d *Definition) Instantiate(ctx context.Context, dev Device, resolver TrackResolver, opts Options, control *float64) (*Instance, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	sound := d.SelectSound(opts.Random, control)
	if sound != nil {
		if err := sound.Acquire(ctx, resolver, d.cfg.WaveBanks); err != nil {
			return nil, errors.Wrapf(err, "cue %q", d.cfg.Name)
		}
	}
	inst := newInstance(d, sound, dev, opts)
	d.mu.Lock()
	d.instances = append(d.instances, inst)
	d.mu.Unlock()
	return inst, nil
}

// Release drops inst's hold on its Sound. Calling it twice is a no-op.
func (d *Definition) Release(inst *Instance) {
	d.mu.Lock()
	found := false
	for i, it := range d.instances {
		if it == inst {
			d.instances = append(d.instances[:i], d.instances[i+1:]...)
			found = true
			break
		}
	}
	d.mu.Unlock()
	if found && inst.sound != nil {
		inst.sound.Release()
	}
}

// Instances returns the live instances, oldest first.
func (d *Definition) Instances() []*Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Instance, len(d.instances))
	copy(out, d.instances)
	return out
}

// InstanceCount counts instances not yet released.
func (d *Definition) InstanceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.instances)
}
