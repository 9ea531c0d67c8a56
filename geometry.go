package main

import "synthmap/synth"

// Affine is the one-dimensional map v' = Scale*v + Shift.
type Affine struct {
	Scale, Shift float64
}

func (a Affine) Apply(v float64) float64 { return a.Scale*v + a.Shift }

func (a Affine) Inverse() Affine {
	return Affine{Scale: 1 / a.Scale, Shift: -a.Shift / a.Scale}
}

// Transform maps a source placement plane onto the target plane, one axis at
// a time.
type Transform struct {
	X, Y Affine
}

func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.X.Apply(x), t.Y.Apply(y)
}

func (t Transform) Inverse() Transform {
	return Transform{X: t.X.Inverse(), Y: t.Y.Inverse()}
}

// HandTrackToSynth maps hand-tracking coordinates (x in [-1, 1], y in [0, 2])
// onto the target grid (x about +-0.9555, y about +-0.6825).
var HandTrackToSynth = Transform{
	X: Affine{Scale: 0.9555, Shift: 0.002},
	Y: Affine{Scale: 0.6825, Shift: 0.0012 - 0.6825},
}

// SynthToHandTrack is the inverse of HandTrackToSynth.
var SynthToHandTrack = HandTrackToSynth.Inverse()

// Fixed lane positions for sources that carry timing only.
var laneAnchors = map[synth.NoteType]synth.Point{
	synth.TypeRight:  {X: 0.202},
	synth.TypeLeft:   {X: -0.108},
	synth.TypeSingle: {},
	synth.TypeBoth:   {},
}

// anchorAt is the lane position of t at render time z.
func anchorAt(t synth.NoteType, z float64) synth.Point {
	p := laneAnchors[t]
	p.Z = z
	return p
}
