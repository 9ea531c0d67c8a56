package main

import (
	"slices"
	"sort"

	"synthmap/synth"
)

// MergeRails joins every placement of noteType, in ascending tick order, into
// one rail keyed at the earliest of them. Points that do not move forward in
// time are dropped so the result stays strictly increasing in z. Placements of
// other types are copied unchanged.
func MergeRails(b *synth.Beatmap, noteType synth.NoteType) *synth.Beatmap {
	out := b.Derive()

	var (
		pts     []synth.Point
		first   synth.Tick
		slot    = -1
		sources int
		rails   bool
	)
	b.Each(func(tick synth.Tick, p synth.Placement) {
		if p.NoteType() != noteType {
			out.Add(tick, p)
			return
		}
		if slot < 0 {
			first, slot = tick, len(out.Notes[tick])
		}
		sources++
		rails = rails || p.Kind() == synth.KindRail
		for _, pt := range p.Points() {
			if n := len(pts); n > 0 && pt.Z <= pts[n-1].Z {
				continue
			}
			pts = append(pts, pt)
		}
	})
	if slot < 0 {
		return out
	}

	var merged synth.Placement = synth.NewRail(noteType, pts)
	if len(pts) == 1 && !rails && sources == 1 {
		merged = synth.NewSingle(noteType, pts[0])
	}
	out.Notes[first] = slices.Insert(out.Notes[first], slot, merged)
	return out
}

// MergeAllRails merges each note type present in b on its own.
func MergeAllRails(b *synth.Beatmap) *synth.Beatmap {
	for _, t := range b.Types() {
		b = MergeRails(b, t)
	}
	return b
}

// SnapToRails moves every single in notes onto the first rail of the same type
// in guide that spans the single's z. Singles outside every rail keep their
// position; rails in notes are copied unchanged.
func SnapToRails(notes, guide *synth.Beatmap) *synth.Beatmap {
	paths := make(map[synth.NoteType][][]synth.Point)
	guide.Each(func(_ synth.Tick, p synth.Placement) {
		if r, ok := p.(synth.Rail); ok && len(r.Segments) > 0 {
			paths[r.Type] = append(paths[r.Type], r.Points())
		}
	})

	out := notes.Derive()
	notes.Each(func(tick synth.Tick, p synth.Placement) {
		if s, ok := p.(synth.Single); ok {
			for _, path := range paths[s.Type] {
				if at, ok := positionAt(path, s.Position.Z); ok {
					s.Position.X, s.Position.Y = at.X, at.Y
					p = s
					break
				}
			}
		}
		out.Add(tick, p)
	})
	return out
}

// positionAt is the point of a z-ascending polyline at render time z.
func positionAt(pts []synth.Point, z float64) (synth.Point, bool) {
	if len(pts) == 0 || z < pts[0].Z || z > pts[len(pts)-1].Z {
		return synth.Point{}, false
	}
	i := upperBound(pts, z)
	if i == len(pts) {
		return pts[i-1], true
	}
	return interpolate(pts[i-1], pts[i], z), true
}

// upperBound is the index of the first point later than z.
func upperBound(pts []synth.Point, z float64) int {
	return sort.Search(len(pts), func(i int) bool { return pts[i].Z > z })
}

// interpolate returns the point at time z on the segment a-b.
func interpolate(a, b synth.Point, z float64) synth.Point {
	if b.Z == a.Z {
		return synth.Point{X: a.X, Y: a.Y, Z: z}
	}
	f := (z - a.Z) / (b.Z - a.Z)
	return synth.Point{
		X: a.X + (b.X-a.X)*f,
		Y: a.Y + (b.Y-a.Y)*f,
		Z: z,
	}
}
