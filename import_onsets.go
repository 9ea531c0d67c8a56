package main

import (
	"fmt"
	"slices"

	"synthmap/synth"
)

type OnsetOptions struct {
	BPM        float64
	Offset     float64 // seconds subtracted from every timestamp
	Resolution int

	// Rounding snaps notes to the nearest 1/Rounding beat; 0 keeps the full
	// grid resolution.
	Rounding int

	// Lanes lists the note types placed at every onset.
	Lanes []synth.NoteType
}

// ImportOnsets places one note per lane at every timestamp. A timestamp that
// lands on a tick already holding a note of the same type is dropped.
func ImportOnsets(times []float64, opts OnsetOptions) (*synth.Beatmap, error) {
	if !finite(opts.BPM, opts.Offset) || opts.BPM <= 0 {
		return nil, fmt.Errorf("bpm %v, offset %v: %w", opts.BPM, opts.Offset, ErrMalformedEvent)
	}
	lanes := opts.Lanes
	if len(lanes) == 0 {
		lanes = []synth.NoteType{synth.TypeRight}
	}
	g := Grid{BPM: opts.BPM, Resolution: opts.Resolution}

	b := synth.New(opts.BPM)
	for i, s := range times {
		if !finite(s) {
			return nil, malformed(i, "timestamp %v", s)
		}
		tick, z := g.Tick(s, opts.Offset), g.Render(s, opts.Offset)
		if opts.Rounding > 0 {
			tick, z = g.Snap(tick, opts.Rounding)
		}
		for _, t := range lanes {
			if slices.ContainsFunc(b.Notes[tick], func(p synth.Placement) bool { return p.NoteType() == t }) {
				continue
			}
			b.Add(tick, synth.NewSingle(t, anchorAt(t, z)))
		}
	}
	b.UpdateLength()
	return b, nil
}
