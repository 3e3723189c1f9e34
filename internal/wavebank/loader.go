package wavebank

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/cbegin/xact-go/internal/cue"
)

// ErrUnsupportedFile is returned for files that are neither WAV nor Ogg Vorbis.
var ErrUnsupportedFile = errors.New("wavebank: unsupported file")

// LoadDir builds a bank from every .wav and .ogg file in dir. Tracks are
// numbered in file name order. Files are decoded concurrently and resampled
// to sampleRate.
func LoadDir(ctx context.Context, name, dir string, sampleRate int) (*Bank, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read wave bank dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".wav", ".ogg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	tracks := make([]*cue.TrackData, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := LoadFile(p, sampleRate)
			if err != nil {
				return err
			}
			tracks[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	b := NewBank(name)
	for _, t := range tracks {
		b.Add(t)
	}
	return b, nil
}

// LoadFile decodes one WAV or Ogg Vorbis file.
func LoadFile(path string, sampleRate int) (*cue.TrackData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return Decode(filepath.Ext(path), raw, sampleRate)
}

// Decode decodes raw file bytes by extension (".wav" or ".ogg") into stereo
// float32 at sampleRate.
func Decode(ext string, raw []byte, sampleRate int) (*cue.TrackData, error) {
	var (
		stream io.Reader
		err    error
	)
	switch strings.ToLower(ext) {
	case ".wav":
		stream, err = wav.DecodeWithSampleRate(sampleRate, bytes.NewReader(raw))
	case ".ogg":
		stream, err = vorbis.DecodeWithSampleRate(sampleRate, bytes.NewReader(raw))
	default:
		return nil, errors.Wrapf(ErrUnsupportedFile, "extension %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", ext)
	}
	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, errors.Wrapf(err, "read decoded %s", ext)
	}
	if len(pcm) < 4 {
		return nil, errors.Errorf("decoded %s has no audio data", ext)
	}
	return &cue.TrackData{
		Format:  cue.WaveFormat{SampleRate: sampleRate, Channels: 2},
		Samples: DecodeStereoI16(pcm),
	}, nil
}

// DecodeStereoI16 converts interleaved little-endian 16-bit PCM to float32,
// keeping the channel layout.
func DecodeStereoI16(pcm []byte) []float32 {
	n := len(pcm) / 4 * 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}
