package main

import (
	"fmt"
	"log"

	"synthmap/stepfile"
	"synthmap/synth"
)

type StepOptions struct {
	Resolution      int
	BeatsPerMeasure float64

	// StrictHolds fails the import on a hold tail with no open hold; when
	// false the tail is logged and skipped.
	StrictHolds bool
}

type stepRow struct {
	measure, row int
	tick         synth.Tick
	glyphs       string
}

// ImportStepChart converts a step chart. offset is the simfile #OFFSET, so
// beat 0 sits at -offset seconds. The left half of the lanes (left, down)
// becomes left-hand notes, the right half (up, right) right-hand notes. A
// hold becomes a rail from its head row to its tail row.
func ImportStepChart(chart stepfile.Chart, bpm, offset float64, opts StepOptions) (*synth.Beatmap, error) {
	if !finite(bpm, offset) || bpm <= 0 {
		return nil, fmt.Errorf("bpm %v, offset %v: %w", bpm, offset, ErrMalformedEvent)
	}
	g := Grid{BPM: bpm, Resolution: opts.Resolution}
	// #OFFSET is the time of beat 0 negated, as StepMania reads it: a
	// positive offset starts the chart early. Older converters added it.
	lead := g.Tick(-offset, 0)

	var rows []stepRow
	for m, measure := range chart.Measures {
		for n, glyphs := range measure {
			beats := (float64(m) + float64(n)/float64(len(measure))) * opts.BeatsPerMeasure
			rows = append(rows, stepRow{measure: m, row: n, tick: g.BeatTick(beats) + lead, glyphs: glyphs})
		}
	}
	lanes := chart.Lanes()

	// First pass: pair hold heads with their tails, per lane.
	tails := make(map[int]map[int]synth.Tick) // row index -> lane -> tail tick
	open := make([]int, lanes)
	for i := range open {
		open[i] = -1
	}
	for i, r := range rows {
		for lane := 0; lane < lanes; lane++ {
			switch r.glyphs[lane] {
			case stepfile.GlyphHoldHead, stepfile.GlyphRollHead:
				open[lane] = i
			case stepfile.GlyphTail:
				head := open[lane]
				if head < 0 {
					err := fmt.Errorf("measure %d row %d lane %d: %w", r.measure, r.row, lane, ErrDanglingHoldEnd)
					if opts.StrictHolds {
						return nil, err
					}
					log.Printf("[stepfile] skipping %v", err)
					continue
				}
				if tails[head] == nil {
					tails[head] = make(map[int]synth.Tick)
				}
				tails[head][lane] = r.tick
				open[lane] = -1
			}
		}
	}

	// Second pass: one placement per hand per row.
	b := synth.New(bpm)
	for i, r := range rows {
		z := g.TickRender(r.tick)
		for _, side := range []struct {
			noteType synth.NoteType
			from, to int
		}{
			{synth.TypeLeft, 0, lanes / 2},
			{synth.TypeRight, lanes / 2, lanes},
		} {
			hit := false
			tail, held := synth.Tick(0), false
			for lane := side.from; lane < side.to; lane++ {
				switch r.glyphs[lane] {
				case stepfile.GlyphTap, stepfile.GlyphHoldHead, stepfile.GlyphRollHead:
					hit = true
				}
				if t, ok := tails[i][lane]; ok && (!held || t > tail) {
					tail, held = t, true
				}
			}
			if !hit {
				continue
			}
			head := anchorAt(side.noteType, z)
			if !held {
				b.Add(r.tick, synth.NewSingle(side.noteType, head))
				continue
			}
			end := anchorAt(side.noteType, g.TickRender(tail))
			b.Add(r.tick, synth.NewRail(side.noteType, []synth.Point{head, end}))
		}
	}
	b.UpdateLength()
	return b, nil
}

// SelectCharts returns the charts whose difficulty matches, or all of them
// when difficulty is empty.
func SelectCharts(sim *stepfile.Simfile, difficulty string) ([]stepfile.Chart, error) {
	if difficulty == "" {
		if len(sim.Charts) == 0 {
			return nil, ErrNoChart
		}
		return sim.Charts, nil
	}
	var out []stepfile.Chart
	for _, c := range sim.Charts {
		if c.Difficulty == difficulty {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("difficulty %q: %w", difficulty, ErrNoChart)
	}
	return out, nil
}
