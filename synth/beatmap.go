package synth

import (
	"encoding/json"
	"maps"
	"slices"
)

// RenderScale is the number of render units (z) per second of audio.
const RenderScale = 20

// ---------- Beatmap model ----------

// Tick counts grid units since map start. It may be negative when an event
// precedes tick 0 because of an offset.
type Tick int64

type Beatmap struct {
	BPM          float64
	StartMeasure Tick
	StartTime    float64 // ms
	Length       float64 // ms

	Notes map[Tick][]Placement

	// Opaque channels, carried through untouched.
	Effects   []json.RawMessage
	Jumps     []json.RawMessage
	Crouchs   []json.RawMessage
	Squares   []json.RawMessage
	Triangles []json.RawMessage
	Slides    []json.RawMessage
	Lights    []json.RawMessage
}

func New(bpm float64) *Beatmap {
	return &Beatmap{BPM: bpm, Notes: make(map[Tick][]Placement)}
}

// Derive returns a Beatmap with the same header and pass-through channels and
// no notes.
func (b *Beatmap) Derive() *Beatmap {
	out := *b
	out.Notes = make(map[Tick][]Placement, len(b.Notes))
	return &out
}

// Add appends p to the placements stored at tick.
func (b *Beatmap) Add(tick Tick, p Placement) {
	if b.Notes == nil {
		b.Notes = make(map[Tick][]Placement)
	}
	b.Notes[tick] = append(b.Notes[tick], p)
}

// Ticks returns every populated tick in ascending order.
func (b *Beatmap) Ticks() []Tick {
	return slices.Sorted(maps.Keys(b.Notes))
}

// Each visits placements in ascending tick order, preserving insertion order
// within a tick.
func (b *Beatmap) Each(fn func(tick Tick, p Placement)) {
	for _, tick := range b.Ticks() {
		for _, p := range b.Notes[tick] {
			fn(tick, p)
		}
	}
}

func (b *Beatmap) Count() (singles, rails int) {
	for _, list := range b.Notes {
		for _, p := range list {
			switch p.Kind() {
			case KindRail:
				rails++
			default:
				singles++
			}
		}
	}
	return singles, rails
}

// Types lists the note types present, ascending.
func (b *Beatmap) Types() []NoteType {
	seen := make(map[NoteType]bool)
	for _, list := range b.Notes {
		for _, p := range list {
			seen[p.NoteType()] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// MaxZ is the latest render time reached by any placement, 0 for an empty map.
func (b *Beatmap) MaxZ() float64 {
	last := 0.0
	for _, list := range b.Notes {
		for _, p := range list {
			pts := p.Points()
			last = max(last, pts[len(pts)-1].Z)
		}
	}
	return last
}

// UpdateLength sets Length to MaxZ expressed in milliseconds.
func (b *Beatmap) UpdateLength() {
	b.Length = b.MaxZ() * 1000 / RenderScale
}
