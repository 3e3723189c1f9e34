// Package wavebank holds decoded wave banks in memory and resolves tracks
// for cue instances.
package wavebank

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/cbegin/xact-go/internal/cue"
)

var (
	ErrBankNotFound  = errors.New("wavebank: bank not found")
	ErrTrackNotFound = errors.New("wavebank: track not found")
)

// Bank is an ordered list of tracks. A track's index is its position.
type Bank struct {
	Name   string
	tracks []*cue.TrackData
}

func NewBank(name string) *Bank {
	return &Bank{Name: name}
}

// Add appends a track and returns its index.
func (b *Bank) Add(t *cue.TrackData) uint16 {
	b.tracks = append(b.tracks, t)
	return uint16(len(b.tracks) - 1)
}

func (b *Bank) Len() int { return len(b.tracks) }

func (b *Bank) Track(index uint16) (*cue.TrackData, error) {
	if int(index) >= len(b.tracks) {
		return nil, errors.Wrapf(ErrTrackNotFound, "%s has %d tracks, asked for %d", b.Name, len(b.tracks), index)
	}
	return b.tracks[index], nil
}

// Registry maps bank names to loaded banks and implements cue.TrackResolver.
type Registry struct {
	mu    sync.RWMutex
	banks map[string]*Bank
}

func NewRegistry() *Registry {
	return &Registry{banks: map[string]*Bank{}}
}

// Register adds or replaces a bank under its name.
func (r *Registry) Register(b *Bank) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banks[b.Name] = b
}

// Unregister drops a bank. It reports whether the bank was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.banks[name]
	delete(r.banks, name)
	return ok
}

func (r *Registry) Bank(name string) (*Bank, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.banks[name]
	return b, ok
}

// Names lists registered banks in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.banks))
	for n := range r.banks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ResolveTrack(bank string, track uint16) (*cue.TrackData, error) {
	b, ok := r.Bank(bank)
	if !ok {
		return nil, errors.Wrapf(ErrBankNotFound, "%q", bank)
	}
	return b.Track(track)
}
