package synth

import "fmt"

// ---------- Note types ----------

type NoteType uint8

const (
	TypeRight NoteType = iota
	TypeLeft
	TypeSingle
	TypeBoth
)

var noteTypeNames = [...]string{"right", "left", "single", "both"}

func (t NoteType) Valid() bool { return int(t) < len(noteTypeNames) }

func (t NoteType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("type(%d)", uint8(t))
	}
	return noteTypeNames[t]
}

func ParseNoteType(s string) (NoteType, error) {
	for i, name := range noteTypeNames {
		if name == s {
			return NoteType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown note type %q", s)
}

// ---------- Placements ----------

// Point is a target-space position: X/Y on the placement grid, Z in render
// time.
type Point struct{ X, Y, Z float64 }

type Kind uint8

const (
	KindSingle Kind = iota
	KindRail
)

type Placement interface {
	Kind() Kind
	NoteType() NoteType
	Head() Point
	// Points returns the head followed by any trailing segments.
	Points() []Point
}

type Base struct {
	Type     NoteType
	Position Point
}

func (b Base) NoteType() NoteType { return b.Type }
func (b Base) Head() Point        { return b.Position }

type Single struct{ Base }

func (Single) Kind() Kind        { return KindSingle }
func (s Single) Points() []Point { return []Point{s.Position} }

func NewSingle(t NoteType, p Point) Single {
	return Single{Base{Type: t, Position: p}}
}

// Rail is a polyline note. Z strictly increases along Position, Segments...
type Rail struct {
	Base
	Segments []Point
}

func (Rail) Kind() Kind { return KindRail }

func (r Rail) Points() []Point {
	pts := make([]Point, 0, len(r.Segments)+1)
	pts = append(pts, r.Position)
	return append(pts, r.Segments...)
}

func (r Rail) Tail() Point {
	if len(r.Segments) == 0 {
		return r.Position
	}
	return r.Segments[len(r.Segments)-1]
}

// Span is the render-time length of the rail.
func (r Rail) Span() float64 { return r.Tail().Z - r.Position.Z }

// NewRail builds a rail from a head-first point list. pts must not be empty.
func NewRail(t NoteType, pts []Point) Rail {
	segs := make([]Point, len(pts)-1)
	copy(segs, pts[1:])
	return Rail{Base: Base{Type: t, Position: pts[0]}, Segments: segs}
}
