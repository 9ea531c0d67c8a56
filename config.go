package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"synthmap/synth"
)

const (
	defaultConfigPath = "synthmap.yaml"
	defaultOnsetBPM   = 120.0
)

type Config struct {
	Grid struct {
		Resolution int `yaml:"resolution"`
	} `yaml:"grid"`

	Rails struct {
		MaxSpan   float64 `yaml:"max_span"`
		SplitSpan float64 `yaml:"split_span"`
		Merge     bool    `yaml:"merge"`

		// SnapGuide is a target map whose rails the singles of every output
		// are snapped onto.
		SnapGuide string `yaml:"snap_guide"`
	} `yaml:"rails"`

	Onsets struct {
		BPM      float64  `yaml:"bpm"`
		Offset   float64  `yaml:"offset"`
		Rounding int      `yaml:"rounding"`
		Lanes    []string `yaml:"lanes"`
	} `yaml:"onsets"`

	StepMania struct {
		BeatsPerMeasure float64 `yaml:"beats_per_measure"`
		StrictHolds     *bool   `yaml:"strict_holds"`
		Difficulty      string  `yaml:"difficulty"`
	} `yaml:"stepmania"`

	AudioTrip struct {
		Choreography string `yaml:"choreography"`
	} `yaml:"audiotrip"`

	Fetch struct {
		PerMinute  int           `yaml:"per_minute"`
		Concurrent int           `yaml:"concurrent"`
		Timeout    time.Duration `yaml:"timeout"`
		Mirror     string        `yaml:"mirror"`
		Key        string        `yaml:"key"`
	} `yaml:"fetch"`

	Workers int    `yaml:"workers"`
	Cache   string `yaml:"cache"`
	OutDir  string `yaml:"out"`
	Force   bool   `yaml:"force"`
}

// LoadConfig reads path and fills in defaults. A missing file at the default
// path yields the default config.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath:
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Grid.Resolution == 0 {
		c.Grid.Resolution = DefaultResolution
	}
	if c.Rails.MaxSpan == 0 {
		c.Rails.MaxSpan = DefaultRailLimits.MaxSpan
	}
	if c.Rails.SplitSpan == 0 {
		c.Rails.SplitSpan = DefaultRailLimits.SplitSpan
	}
	if len(c.Onsets.Lanes) == 0 {
		c.Onsets.Lanes = []string{synth.TypeRight.String()}
	}
	if c.StepMania.BeatsPerMeasure == 0 {
		c.StepMania.BeatsPerMeasure = 4
	}
	if c.StepMania.StrictHolds == nil {
		strict := true
		c.StepMania.StrictHolds = &strict
	}
	if c.Fetch.PerMinute == 0 {
		c.Fetch.PerMinute = 30
	}
	if c.Fetch.Concurrent == 0 {
		c.Fetch.Concurrent = 2
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 10 * time.Minute
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Cache == "" {
		c.Cache = "synthmap.db"
	}
	if c.OutDir == "" {
		c.OutDir = "."
	}
}

func (c *Config) Validate() error {
	switch {
	case c.Grid.Resolution < 1:
		return fmt.Errorf("grid.resolution %d < 1", c.Grid.Resolution)
	case c.Rails.MaxSpan <= 0:
		return fmt.Errorf("rails.max_span %v <= 0", c.Rails.MaxSpan)
	case c.Rails.SplitSpan <= 0:
		return fmt.Errorf("rails.split_span %v <= 0", c.Rails.SplitSpan)
	case c.Onsets.BPM < 0:
		return fmt.Errorf("onsets.bpm %v < 0", c.Onsets.BPM)
	case c.Onsets.Rounding < 0:
		return fmt.Errorf("onsets.rounding %d < 0", c.Onsets.Rounding)
	case c.StepMania.BeatsPerMeasure <= 0:
		return fmt.Errorf("stepmania.beats_per_measure %v <= 0", c.StepMania.BeatsPerMeasure)
	case c.Workers < 1:
		return fmt.Errorf("workers %d < 1", c.Workers)
	case c.Fetch.PerMinute < 1 || c.Fetch.Concurrent < 1:
		return fmt.Errorf("fetch limits %d/min, %d concurrent", c.Fetch.PerMinute, c.Fetch.Concurrent)
	}
	if _, err := c.lanes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) lanes() ([]synth.NoteType, error) {
	out := make([]synth.NoteType, 0, len(c.Onsets.Lanes))
	for _, name := range c.Onsets.Lanes {
		t, err := synth.ParseNoteType(name)
		if err != nil {
			return nil, fmt.Errorf("onsets.lanes: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Config) RailLimits() RailLimits {
	return RailLimits{MaxSpan: c.Rails.MaxSpan, SplitSpan: c.Rails.SplitSpan}
}

func (c *Config) StepOptions() StepOptions {
	return StepOptions{
		Resolution:      c.Grid.Resolution,
		BeatsPerMeasure: c.StepMania.BeatsPerMeasure,
		StrictHolds:     *c.StepMania.StrictHolds,
	}
}

// OnsetOptions returns the onset settings. A configured BPM wins over the
// tempo the source carries; with neither, onsets are gridded at 120 BPM.
func (c *Config) OnsetOptions(sourceBPM float64) OnsetOptions {
	bpm := defaultOnsetBPM
	switch {
	case c.Onsets.BPM > 0:
		bpm = c.Onsets.BPM
	case sourceBPM > 0:
		bpm = sourceBPM
	}
	lanes, _ := c.lanes()
	return OnsetOptions{
		BPM:        bpm,
		Offset:     c.Onsets.Offset,
		Resolution: c.Grid.Resolution,
		Rounding:   c.Onsets.Rounding,
		Lanes:      lanes,
	}
}
