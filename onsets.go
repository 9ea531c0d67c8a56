package main

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"
)

const defaultMIDITempo = 120.0

// ReadOnsetList reads timestamps in seconds separated by whitespace, commas or
// newlines. Text after '#' on a line is ignored.
func ReadOnsetList(r io.Reader) ([]float64, error) {
	var times []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		for _, field := range strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == ';'
		}) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w: %w", line, ErrMalformedEvent, err)
			}
			times = append(times, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

// MIDIOnsets holds note-on times of a Standard MIDI File.
type MIDIOnsets struct {
	Times []float64 // seconds, ascending, one entry per distinct instant
	BPM   float64   // first tempo event, 120 when the file has none
}

type tempoChange struct {
	tick int64
	bpm  float64
}

func ReadMIDIOnsets(r io.Reader) (*MIDIOnsets, error) {
	data, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read midi: %w", err)
	}
	tpq, ok := data.TimeFormat.(smf.MetricTicks)
	if !ok || tpq == 0 {
		return nil, fmt.Errorf("unsupported midi time format %v", data.TimeFormat)
	}

	var tempos []tempoChange
	var ticks []int64
	for _, track := range data.Tracks {
		var abs int64
		for _, ev := range track {
			abs += int64(ev.Delta)
			var ch, key, vel uint8
			var bpm float64
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel):
				// note-off encoded as a zero-velocity note-on
				if vel > 0 {
					ticks = append(ticks, abs)
				}
			case ev.Message.GetMetaTempo(&bpm):
				if bpm > 0 {
					tempos = append(tempos, tempoChange{tick: abs, bpm: bpm})
				}
			}
		}
	}
	slices.SortStableFunc(tempos, func(a, b tempoChange) int { return cmp.Compare(a.tick, b.tick) })
	slices.Sort(ticks)
	ticks = slices.Compact(ticks)

	out := &MIDIOnsets{BPM: defaultMIDITempo, Times: make([]float64, len(ticks))}
	if len(tempos) > 0 {
		out.BPM = tempos[0].bpm
	}
	for i, t := range ticks {
		out.Times[i] = midiSeconds(t, float64(tpq), tempos)
	}
	return out, nil
}

// midiSeconds converts an absolute tick to seconds under a sorted tempo map.
// The default tempo applies before the first change.
func midiSeconds(tick int64, tpq float64, tempos []tempoChange) float64 {
	var secs float64
	at, bpm := int64(0), defaultMIDITempo
	for _, tc := range tempos {
		if tc.tick >= tick {
			break
		}
		secs += float64(tc.tick-at) / tpq * 60 / bpm
		at, bpm = tc.tick, tc.bpm
	}
	return secs + float64(tick-at)/tpq*60/bpm
}
