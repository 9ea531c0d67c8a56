package main

import (
	"math"

	"synthmap/synth"
)

// DefaultResolution is the editor's native grid: 64 ticks per beat.
const DefaultResolution = 64

// Grid converts between seconds, grid ticks and render time for a fixed
// tempo. Resolution is ticks per beat.
type Grid struct {
	BPM        float64
	Resolution int
}

func NewGrid(bpm float64) Grid {
	return Grid{BPM: bpm, Resolution: DefaultResolution}
}

func (g Grid) ticksPerSecond() float64 {
	return g.BPM * float64(g.Resolution) / 60
}

// Tick is the grid position of an event at seconds, measured from offset.
func (g Grid) Tick(seconds, offset float64) synth.Tick {
	return synth.Tick(math.Round((seconds - offset) * g.ticksPerSecond()))
}

// BeatTick is the grid position of a time expressed in beats.
func (g Grid) BeatTick(beats float64) synth.Tick {
	return synth.Tick(math.Round(beats * float64(g.Resolution)))
}

// Render is the z coordinate of an event at seconds, measured from offset.
func (g Grid) Render(seconds, offset float64) float64 {
	return (seconds - offset) * synth.RenderScale
}

// TickRender is the z coordinate of tick.
func (g Grid) TickRender(tick synth.Tick) float64 {
	return float64(tick) * synth.RenderScale / g.ticksPerSecond()
}

// RenderTick is the tick nearest to render time z.
func (g Grid) RenderTick(z float64) synth.Tick {
	return synth.Tick(math.Round(z * g.ticksPerSecond() / synth.RenderScale))
}

// Snap moves tick to the nearest 1/divisor beat and returns the snapped tick
// with its render time. A divisor <= 0 leaves tick unchanged.
func (g Grid) Snap(tick synth.Tick, divisor int) (synth.Tick, float64) {
	if divisor > 0 {
		step := float64(g.Resolution) / float64(divisor)
		tick = synth.Tick(math.Round(math.Round(float64(tick)/step) * step))
	}
	return tick, g.TickRender(tick)
}
