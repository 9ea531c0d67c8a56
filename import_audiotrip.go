package main

import (
	"fmt"
	"math"

	"synthmap/audiotrip"
	"synthmap/synth"
)

// HandTrack is a hand-tracking choreography ready for import.
type HandTrack struct {
	BPM    float64
	LeadIn float64 // seconds before the first measure
	Events []audiotrip.Event
}

// gems and ribbons share a hand
var handTrackTypes = map[int]synth.NoteType{
	audiotrip.TypeLeftGem:     synth.TypeLeft,
	audiotrip.TypeRightGem:    synth.TypeRight,
	audiotrip.TypeLeftRibbon:  synth.TypeLeft,
	audiotrip.TypeRightRibbon: synth.TypeRight,
}

func HandTrackFromSong(song *audiotrip.Song, choreography string) (HandTrack, error) {
	lead, err := song.LeadIn()
	if err != nil {
		return HandTrack{}, err
	}
	c, err := song.Choreography(choreography)
	if err != nil {
		return HandTrack{}, fmt.Errorf("%w: %w", ErrNoChart, err)
	}
	return HandTrack{
		BPM:    song.Metadata.AvgBPM,
		LeadIn: lead,
		Events: c.Data.Events,
	}, nil
}

// ImportHandTrack converts gems to singles and ribbons to rails. Ribbon nodes
// carry no timestamps, so each node after the head advances by one beat
// division. Event types other than gems and ribbons are skipped.
func ImportHandTrack(track HandTrack, resolution int) (*synth.Beatmap, error) {
	if !finite(track.BPM, track.LeadIn) || track.BPM <= 0 {
		return nil, fmt.Errorf("bpm %v, lead-in %v: %w", track.BPM, track.LeadIn, ErrMalformedEvent)
	}
	g := Grid{BPM: track.BPM, Resolution: resolution}
	lead := g.Tick(track.LeadIn, 0)

	b := synth.New(track.BPM)
	for i, ev := range track.Events {
		noteType, ok := handTrackTypes[ev.Type]
		if !ok {
			continue
		}
		if ev.Time == nil {
			return nil, malformed(i, "missing time")
		}
		if ev.Time.Denominator == 0 {
			return nil, malformed(i, "zero denominator")
		}
		if ev.Position == nil {
			return nil, malformed(i, "missing position")
		}
		pos := *ev.Position
		if !finite(pos.X, pos.Y) {
			return nil, malformed(i, "position (%v, %v)", pos.X, pos.Y)
		}

		tick := g.BeatTick(ev.Time.Beats()) + lead
		z := g.TickRender(tick)
		x, y := HandTrackToSynth.Apply(pos.X, pos.Y)
		head := synth.Point{X: x, Y: y, Z: z}

		if ev.IsGem() {
			b.Add(tick, synth.NewSingle(noteType, head))
			continue
		}

		if ev.BeatDivision <= 0 {
			return nil, malformed(i, "ribbon beat division %d", ev.BeatDivision)
		}
		step := 60 * synth.RenderScale / (track.BPM * float64(ev.BeatDivision))
		rail := synth.Rail{Base: synth.Base{Type: noteType, Position: head}, Segments: []synth.Point{}}
		// The first sub-position is the head itself.
		for j := 1; j < len(ev.SubPositions); j++ {
			node := ev.SubPositions[j]
			if !finite(node.X, node.Y) {
				return nil, malformed(i, "sub-position %d (%v, %v)", j, node.X, node.Y)
			}
			z += step
			x, y := HandTrackToSynth.Apply(pos.X+node.X, pos.Y+node.Y)
			rail.Segments = append(rail.Segments, synth.Point{X: x, Y: y, Z: z})
		}
		b.Add(tick, rail)
	}
	b.UpdateLength()
	return b, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
