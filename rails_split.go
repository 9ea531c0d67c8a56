package main

import (
	"math"
	"slices"

	"synthmap/synth"
)

// RailLimits bounds rail length in render time. Rails longer than MaxSpan are
// cut into pieces sized from SplitSpan, which sits a little above MaxSpan.
type RailLimits struct {
	MaxSpan   float64
	SplitSpan float64
}

var DefaultRailLimits = RailLimits{MaxSpan: 200, SplitSpan: 205}

// splitCount is the number of interior cuts for a rail of the given span.
// ceil(span/SplitSpan) cuts is raised until every piece fits under MaxSpan.
func (l RailLimits) splitCount(span float64) int {
	size := l.SplitSpan
	if size <= 0 {
		size = l.MaxSpan
	}
	n := int(math.Ceil(span / size))
	for l.MaxSpan > 0 && span/float64(n+1) > l.MaxSpan {
		n++
	}
	return n
}

// SplitRails returns a copy of b in which no rail spans more than
// limits.MaxSpan. The first piece of a split rail keeps the rail's tick; the
// others are keyed by the tick of their own head. Singles, zero-length rails
// and rails within the limit are copied unchanged.
func SplitRails(b *synth.Beatmap, g Grid, limits RailLimits) *synth.Beatmap {
	out := b.Derive()
	b.Each(func(tick synth.Tick, p synth.Placement) {
		r, ok := p.(synth.Rail)
		if !ok || r.Span() <= limits.MaxSpan {
			out.Add(tick, p)
			return
		}
		pieces := splitRail(r, limits)
		out.Add(tick, pieces[0])
		for _, piece := range pieces[1:] {
			out.Add(g.RenderTick(piece.Position.Z), piece)
		}
	})
	return out
}

// splitRail cuts r at evenly spaced interior times. Each cut inserts the
// interpolated point at that time; neighbouring pieces share it as tail and
// head.
func splitRail(r synth.Rail, limits RailLimits) []synth.Rail {
	orig := r.Points()
	head, tail := orig[0].Z, orig[len(orig)-1].Z
	n := limits.splitCount(tail - head)

	work := slices.Clone(orig)
	cuts := make([]int, 0, n)
	inserted := 0
	for k := 1; k <= n; k++ {
		t := head + (tail-head)*float64(k)/float64(n+1)
		// Earlier cuts inserted points before t, shifting it right.
		i := upperBound(orig, t) + inserted
		if work[i-1].Z == t {
			cuts = append(cuts, i-1)
			continue
		}
		work = slices.Insert(work, i, interpolate(work[i-1], work[i], t))
		cuts = append(cuts, i)
		inserted++
	}

	pieces := make([]synth.Rail, 0, len(cuts)+1)
	from := 0
	for _, c := range cuts {
		pieces = append(pieces, synth.NewRail(r.Type, work[from:c+1]))
		from = c
	}
	return append(pieces, synth.NewRail(r.Type, work[from:]))
}
