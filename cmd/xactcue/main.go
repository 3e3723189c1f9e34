package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	xact "github.com/cbegin/xact-go"
	"github.com/cbegin/xact-go/internal/audio"
	"github.com/cbegin/xact-go/internal/cuedata"
)

const (
	cueName    = "entry"
	reverbTail = 1500 * time.Millisecond
)

// settings is the optional -config file.
type settings struct {
	BigEndian  bool               `json:"big_endian"`
	EQ         []float64          `json:"eq_db"`
	Variables  map[string]float64 `json:"variables"`
	Categories []struct {
		Index  uint16   `json:"index"`
		Name   string   `json:"name"`
		Volume *float64 `json:"volume"`
	} `json:"categories"`
	Curves []struct {
		ID        uint32       `json:"id"`
		Variable  string       `json:"variable"`
		Parameter string       `json:"parameter"`
		Points    [][2]float64 `json:"points"`
	} `json:"rpc_curves"`
	Cue struct {
		Category  uint16 `json:"category"`
		FadeInMs  uint16 `json:"fade_in_ms"`
		FadeOutMs uint16 `json:"fade_out_ms"`
	} `json:"cue"`
}

func main() {
	var (
		entryPath  = flag.String("entry", "", "file holding a sound bank entry")
		offset     = flag.Int64("offset", 0, "byte offset of the sound entry")
		dump       = flag.Bool("dump", false, "print the decoded sound and exit")
		tracksDir  = flag.String("tracks", "", "directory of .wav/.ogg files loaded as the wave bank")
		bankName   = flag.String("bank", "main", "wave bank name for -tracks")
		outPath    = flag.String("out", "", "render to a float WAV file instead of playing")
		configPath = flag.String("config", "", "JSON settings: categories, variables, rpc curves")
		seconds    = flag.Float64("seconds", 5, "render length, or playback timeout")
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		seed       = flag.Int64("seed", 0, "random seed (0 = time based)")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
	)
	flag.Parse()

	if strings.TrimSpace(*entryPath) == "" {
		log.Fatal("-entry is required")
	}
	raw, err := os.ReadFile(*entryPath)
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := loadSettings(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if cfg.BigEndian {
		order = binary.BigEndian
	}

	if *dump {
		s, err := cuedata.NewParser(cuedata.ParserConfig{ByteOrder: order}).ParseSound(raw, *offset)
		if err != nil {
			log.Fatal(err)
		}
		dumpSound(s)
		return
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	mixer, err := audio.NewMixer(audio.DefaultMixerConfig(*sampleRate))
	if err != nil {
		log.Fatal(err)
	}
	for band, g := range cfg.EQ {
		mixer.SetEQBand(band, g)
	}
	engine, err := xact.NewEngine(mixer, nil,
		xact.WithSampleRate(*sampleRate),
		xact.WithRandomSource(rand.New(rand.NewSource(*seed))),
		xact.WithLogger(log.New(os.Stderr, "xactcue: ", log.LstdFlags)),
		xact.WithByteOrder(order),
		xact.WithMasterVolume(*volume),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	if *tracksDir != "" {
		wb, err := engine.LoadWaveBankDir(context.Background(), *bankName, *tracksDir)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("loaded %d tracks into %q\n", wb.Len(), *bankName)
	}
	if err := applySettings(engine, cfg); err != nil {
		log.Fatal(err)
	}

	sb, err := xact.NewSoundBank(engine, "cli", []string{*bankName})
	if err != nil {
		log.Fatal(err)
	}
	idx, err := sb.AddSoundEntry(raw, *offset)
	if err != nil {
		log.Fatal(err)
	}
	err = sb.AddCue(xact.CueDefinitionConfig{
		Name:      cueName,
		Sounds:    []xact.WeightedSound{{Index: idx, Weight: 1}},
		Category:  cfg.Cue.Category,
		FadeInMs:  cfg.Cue.FadeInMs,
		FadeOutMs: cfg.Cue.FadeOutMs,
	})
	if err != nil {
		log.Fatal(err)
	}

	if *outPath != "" {
		samples, err := xact.RenderCue(sb, cueName, *sampleRate, *seconds)
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(*outPath, xact.EncodeWAVFloat32LE(samples, *sampleRate, 2), 0o644); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s (%.2fs)\n", *outPath, *seconds)
		return
	}

	if err := playRealtime(engine, sb, *sampleRate, *seconds); err != nil {
		log.Fatal(err)
	}
}

func playRealtime(engine *xact.Engine, sb *xact.SoundBank, sampleRate int, seconds float64) error {
	ch := engine.Watch()
	pl, err := audio.NewPlayer(sampleRate, xact.Output{Engine: engine}, audio.PlayerConfig{
		BufferSize: 50 * time.Millisecond,
		Tail:       reverbTail,
	})
	if err != nil {
		return err
	}
	defer pl.Close()
	c, err := sb.PlayCue(cueName)
	if err != nil {
		return err
	}
	pl.Play()
	timeout := time.After(time.Duration(seconds * float64(time.Second)))
	for {
		select {
		case ev := <-ch:
			switch ev.Kind {
			case xact.EventStarted:
				fmt.Printf("started %s\n", ev.Instance)
				fmt.Printf("tracks %v\n", c.Tracks())
			case xact.EventMarker:
				fmt.Printf("marker %d\n", ev.Value)
			case xact.EventStopped:
				fmt.Println("cue stopped")
			}
		case <-pl.Done():
			fmt.Println("playback completed")
			return nil
		case <-timeout:
			c.Stop(true)
			fmt.Println("timeout, stopping")
			timeout = nil
		}
	}
}

func loadSettings(path string) (settings, error) {
	var cfg settings
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

func applySettings(engine *xact.Engine, cfg settings) error {
	for _, c := range cfg.Categories {
		engine.SetCategory(c.Index, c.Name)
		if c.Volume != nil {
			engine.SetCategoryVolume(c.Index, *c.Volume)
		}
	}
	for name, v := range cfg.Variables {
		engine.SetGlobalVariable(name, v)
	}
	for _, c := range cfg.Curves {
		param, err := parseParameter(c.Parameter)
		if err != nil {
			return err
		}
		pts := make([]xact.RPCPoint, len(c.Points))
		for i, p := range c.Points {
			pts[i] = xact.RPCPoint{X: p[0], Y: p[1]}
		}
		if err := engine.AddRPCCurve(c.ID, xact.RPCCurve{Variable: c.Variable, Parameter: param, Points: pts}); err != nil {
			return err
		}
	}
	return nil
}

func parseParameter(name string) (xact.RPCParameter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "volume":
		return xact.RPCVolume, nil
	case "pitch":
		return xact.RPCPitch, nil
	case "reverb", "reverbsend", "reverb_send":
		return xact.RPCReverbSend, nil
	case "filter", "filterfrequency", "filter_frequency":
		return xact.RPCFilterFrequency, nil
	default:
		return 0, fmt.Errorf("invalid rpc parameter %q (expected volume|pitch|reverb_send|filter_frequency)", name)
	}
}

func dumpSound(s *cuedata.Sound) {
	fmt.Printf("sound complex=%v category=%d volume=%.3f (%.1f dB) pitch=%d priority=%d\n",
		s.Complex, s.Category, s.Volume, s.VolumeDB/100, s.Pitch, s.Priority)
	if len(s.RPCCurves) > 0 {
		fmt.Printf("  rpc curves %v\n", s.RPCCurves)
	}
	if len(s.DSPPresets) > 0 {
		fmt.Printf("  dsp presets %v\n", s.DSPPresets)
	}
	for i, clip := range s.Clips {
		fmt.Printf("  clip %d volume=%.1f dB filter=%+v\n", i, clip.Volume/100, clip.Filter)
		for _, ev := range clip.Events {
			t := ev.EventTiming()
			fmt.Printf("    @%5dms +%dms code=%-2d ", t.Timestamp, t.RandomOffset, ev.Code())
			switch e := ev.(type) {
			case *cuedata.PlayWaveEvent:
				fmt.Printf("play tracks=%v banks=%v weights=%v %s loop=%d pitch=[%d,%d] volume=[%.1f,%.1f]\n",
					e.Tracks, e.WaveBanks, e.Weights, e.Variation, e.LoopCount, e.MinPitch, e.MaxPitch, e.MinVolume/100, e.MaxVolume/100)
			case *cuedata.StopEvent:
				fmt.Printf("stop immediate=%v cue=%v\n", e.Options == cuedata.StopImmediate, e.Scope == cuedata.ScopeCue)
			case *cuedata.SetValueEvent:
				fmt.Printf("set %s op=%d value=%g\n", e.Property, e.Operation, e.Value)
			case *cuedata.SetRandomValueEvent:
				fmt.Printf("random %s op=%d range=[%g,%g]\n", e.Property, e.Operation, e.Min, e.Max)
			case *cuedata.SetRampValueEvent:
				fmt.Printf("ramp %s from=%g slope=%g delta=%g over %dms\n", e.Property, e.InitialValue, e.InitialSlope, e.SlopeDelta, e.Duration)
			case *cuedata.MarkerEvent:
				fmt.Printf("marker %d\n", e.Value)
			}
			if t.Repeating {
				fmt.Printf("      repeat count=%d every %gs\n", t.RepeatCount, t.Frequency)
			}
		}
	}
}
