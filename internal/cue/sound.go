package cue

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/cbegin/xact-go/internal/cuedata"
)

// ErrTrackUnavailable is returned when a Sound's tracks cannot be resolved.
var ErrTrackUnavailable = errors.New("cue: track unavailable")

// Sound pairs a parsed sound entry with the wave data its PlayWave events
// need. The data is resolved when the first instance acquires the Sound and
// dropped when the last one releases it.
type Sound struct {
	Data *cuedata.Sound

	mu     sync.Mutex
	live   int
	tracks map[cuedata.TrackRef]*TrackData
}

func NewSound(data *cuedata.Sound) *Sound {
	return &Sound{Data: data}
}

// Acquire increments the live count, resolving every referenced track on the
// 0 to 1 transition. waveBanks maps the entry's bank indices to names.
func (s *Sound) Acquire(ctx context.Context, resolver TrackResolver, waveBanks []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == 0 {
		tracks, err := resolveTracks(ctx, resolver, waveBanks, s.Data.TrackRefs())
		if err != nil {
			return err
		}
		s.tracks = tracks
	}
	s.live++
	return nil
}

// Release decrements the live count and unloads on the 1 to 0 transition.
func (s *Sound) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == 0 {
		return
	}
	s.live--
	if s.live == 0 {
		s.tracks = nil
	}
}

func (s *Sound) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Track returns resolved data for ref while the Sound is acquired.
func (s *Sound) Track(ref cuedata.TrackRef) (*TrackData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[ref]
	return t, ok
}

// UsesWaveBank reports whether any PlayWave event reads from bank index.
func (s *Sound) UsesWaveBank(index uint8) bool {
	for _, ref := range s.Data.TrackRefs() {
		if ref.WaveBank == index {
			return true
		}
	}
	return false
}

func resolveTracks(ctx context.Context, resolver TrackResolver, waveBanks []string, refs []cuedata.TrackRef) (map[cuedata.TrackRef]*TrackData, error) {
	out := make([]*TrackData, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if int(ref.WaveBank) >= len(waveBanks) {
				return errors.Wrapf(ErrTrackUnavailable, "wave bank index %d out of %d", ref.WaveBank, len(waveBanks))
			}
			name := waveBanks[ref.WaveBank]
			data, err := resolver.ResolveTrack(name, ref.Track)
			if err != nil {
				return errors.Wrapf(ErrTrackUnavailable, "%s track %d: %v", name, ref.Track, err)
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	tracks := make(map[cuedata.TrackRef]*TrackData, len(refs))
	for i, ref := range refs {
		tracks[ref] = out[i]
	}
	return tracks, nil
}
