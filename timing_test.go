package main

import (
	"math"
	"testing"

	"synthmap/synth"
)

func TestGridTickRoundTrip(t *testing.T) {
	for _, bpm := range []float64{60, 118.96, 120, 174, 300} {
		g := NewGrid(bpm)
		// One grid unit of render time.
		unit := g.TickRender(1)
		for s := 0.0; s < 600; s += 0.737 {
			z := g.TickRender(g.Tick(s, 0))
			if d := math.Abs(z - g.Render(s, 0)); d > unit {
				t.Fatalf("bpm %v, %vs: |%v - %v| = %v > %v", bpm, s, z, g.Render(s, 0), d, unit)
			}
		}
	}
}

func TestGridConversions(t *testing.T) {
	g := NewGrid(60)
	tests := []struct {
		seconds, offset float64
		tick            synth.Tick
		z               float64
	}{
		{1, 0, 64, 20},
		{2, 0, 128, 40},
		{1.5, 0.5, 64, 20},
		{0, 0.25, -16, -5},
	}
	for _, tt := range tests {
		if got := g.Tick(tt.seconds, tt.offset); got != tt.tick {
			t.Errorf("Tick(%v, %v) = %d, want %d", tt.seconds, tt.offset, got, tt.tick)
		}
		if got := g.Render(tt.seconds, tt.offset); got != tt.z {
			t.Errorf("Render(%v, %v) = %v, want %v", tt.seconds, tt.offset, got, tt.z)
		}
		if got := g.TickRender(tt.tick); got != tt.z {
			t.Errorf("TickRender(%d) = %v, want %v", tt.tick, got, tt.z)
		}
		if got := g.RenderTick(tt.z); got != tt.tick {
			t.Errorf("RenderTick(%v) = %d, want %d", tt.z, got, tt.tick)
		}
	}
}

func TestGridRoundsHalfAwayFromZero(t *testing.T) {
	g := NewGrid(60)
	// 0.5 ticks either side of zero.
	half := 0.5 / 64
	if got := g.Tick(half, 0); got != 1 {
		t.Errorf("Tick(+half) = %d, want 1", got)
	}
	if got := g.Tick(-half, 0); got != -1 {
		t.Errorf("Tick(-half) = %d, want -1", got)
	}
}

func TestGridSnap(t *testing.T) {
	g := NewGrid(120)
	tests := []struct {
		tick    synth.Tick
		divisor int
		want    synth.Tick
	}{
		{37, 0, 37},
		{37, 4, 32},
		{40, 4, 48},
		{37, 2, 32},
		{50, 2, 64},
		{-9, 8, -8},
		{22, 3, 21},
	}
	for _, tt := range tests {
		got, z := g.Snap(tt.tick, tt.divisor)
		if got != tt.want {
			t.Errorf("Snap(%d, %d) = %d, want %d", tt.tick, tt.divisor, got, tt.want)
		}
		if z != g.TickRender(got) {
			t.Errorf("Snap(%d, %d) z = %v, want %v", tt.tick, tt.divisor, z, g.TickRender(got))
		}
	}
}

func TestTransformInverse(t *testing.T) {
	for _, p := range [][2]float64{{0, 1}, {-1, 0}, {1, 2}, {0.37, 1.61}} {
		x, y := HandTrackToSynth.Apply(p[0], p[1])
		bx, by := SynthToHandTrack.Apply(x, y)
		if math.Abs(bx-p[0]) > 1e-12 || math.Abs(by-p[1]) > 1e-12 {
			t.Errorf("round trip %v -> (%v, %v) -> (%v, %v)", p, x, y, bx, by)
		}
	}
	x, y := HandTrackToSynth.Apply(0, 1)
	if math.Abs(x-0.002) > 1e-12 || math.Abs(y-0.0012) > 1e-12 {
		t.Errorf("center maps to (%v, %v), want (0.002, 0.0012)", x, y)
	}
}
