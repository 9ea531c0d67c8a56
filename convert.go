package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"synthmap/audiotrip"
	"synthmap/stepfile"
	"synthmap/synth"
)

// Source is one input file, already read into memory.
type Source struct {
	Name string // path, archive member or URL
	Data []byte
}

// Output is one converted map, named without directory or extension.
type Output struct {
	Name string
	Map  *synth.Beatmap
}

var sourceExts = map[string]bool{
	".ats":  true,
	".sm":   true,
	".mid":  true,
	".midi": true,
	".txt":  true,
	".csv":  true,
	".json": true,
}

func isSource(name string) bool {
	return sourceExts[strings.ToLower(filepath.Ext(name))]
}

type Converter struct {
	cfg         *Config
	guide       *synth.Beatmap
	guideDigest string
}

func NewConverter(cfg *Config) (*Converter, error) {
	c := &Converter{cfg: cfg}
	if cfg.Rails.SnapGuide != "" {
		data, err := os.ReadFile(cfg.Rails.SnapGuide)
		if err != nil {
			return nil, fmt.Errorf("snap guide: %w", err)
		}
		guide, err := synth.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("snap guide %s: %w", cfg.Rails.SnapGuide, err)
		}
		c.guide, c.guideDigest = guide, Digest(data)
	}
	return c, nil
}

// Settings digests every setting that shapes the converted maps, the snap
// guide content included. Output location and batch knobs are left out.
func (c *Converter) Settings() (string, error) {
	data, err := yaml.Marshal(struct {
		Grid      any    `yaml:"grid"`
		Rails     any    `yaml:"rails"`
		Onsets    any    `yaml:"onsets"`
		StepMania any    `yaml:"stepmania"`
		AudioTrip any    `yaml:"audiotrip"`
		Guide     string `yaml:"guide"`
	}{c.cfg.Grid, c.cfg.Rails, c.cfg.Onsets, c.cfg.StepMania, c.cfg.AudioTrip, c.guideDigest})
	if err != nil {
		return "", fmt.Errorf("settings: %w", err)
	}
	return Digest(data), nil
}

// Convert imports src by its extension and runs every output through the
// rail stages.
func (c *Converter) Convert(src Source) ([]Output, error) {
	ext := filepath.Ext(src.Name)
	base := strings.TrimSuffix(filepath.Base(src.Name), ext)
	r := bytes.NewReader(src.Data)

	var outs []Output
	switch strings.ToLower(ext) {
	case ".ats":
		song, err := audiotrip.Decode(r)
		if err != nil {
			return nil, err
		}
		track, err := HandTrackFromSong(song, c.cfg.AudioTrip.Choreography)
		if err != nil {
			return nil, err
		}
		b, err := ImportHandTrack(track, c.cfg.Grid.Resolution)
		if err != nil {
			return nil, err
		}
		outs = append(outs, Output{Name: base, Map: b})

	case ".sm":
		sim, err := stepfile.Decode(r)
		if err != nil {
			return nil, err
		}
		charts, err := SelectCharts(sim, c.cfg.StepMania.Difficulty)
		if err != nil {
			return nil, err
		}
		for n, chart := range charts {
			b, err := ImportStepChart(chart, sim.BPM(), sim.Offset, c.cfg.StepOptions())
			if err != nil {
				return nil, fmt.Errorf("chart %d (%s): %w", n, chart.Difficulty, err)
			}
			outs = append(outs, Output{Name: fmt.Sprintf("%s_%d", base, n), Map: b})
		}

	case ".mid", ".midi":
		m, err := ReadMIDIOnsets(r)
		if err != nil {
			return nil, err
		}
		b, err := ImportOnsets(m.Times, c.cfg.OnsetOptions(m.BPM))
		if err != nil {
			return nil, err
		}
		outs = append(outs, Output{Name: base, Map: b})

	case ".txt", ".csv":
		times, err := ReadOnsetList(r)
		if err != nil {
			return nil, err
		}
		b, err := ImportOnsets(times, c.cfg.OnsetOptions(0))
		if err != nil {
			return nil, err
		}
		outs = append(outs, Output{Name: base, Map: b})

	case ".json":
		b, err := synth.Decode(r)
		if err != nil {
			return nil, err
		}
		outs = append(outs, Output{Name: base, Map: b})

	default:
		return nil, fmt.Errorf("%s: %w", ext, ErrUnknownFormat)
	}

	for i := range outs {
		outs[i].Map = c.finish(outs[i].Map)
	}
	return outs, nil
}

// finish runs the post-import stages: merge, split, snap, then length.
func (c *Converter) finish(b *synth.Beatmap) *synth.Beatmap {
	if c.cfg.Rails.Merge {
		b = MergeAllRails(b)
	}
	g := Grid{BPM: b.BPM, Resolution: c.cfg.Grid.Resolution}
	b = SplitRails(b, g, c.cfg.RailLimits())
	if c.guide != nil {
		b = SnapToRails(b, c.guide)
	}
	b.UpdateLength()
	return b
}
