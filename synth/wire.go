package synth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ---------- Wire format ----------

// wireMap mirrors the editor's JSON object. "lenght" is misspelled by the
// editor and has to stay that way.
type wireMap struct {
	BPM          float64         `json:"BPM"`
	StartMeasure int64           `json:"startMeasure"`
	StartTime    float64         `json:"startTime"`
	Length       float64         `json:"lenght"`
	Notes        json.RawMessage `json:"notes"`

	Effects   []json.RawMessage `json:"effects"`
	Jumps     []json.RawMessage `json:"jumps"`
	Crouchs   []json.RawMessage `json:"crouchs"`
	Squares   []json.RawMessage `json:"squares"`
	Triangles []json.RawMessage `json:"triangles"`
	Slides    []json.RawMessage `json:"slides"`
	Lights    []json.RawMessage `json:"lights"`
}

type wireNote struct {
	Position [3]float64   `json:"Position"`
	Segments [][3]float64 `json:"Segments"`
	Type     int          `json:"Type"`
}

func fromWire(v [3]float64) Point { return Point{X: v[0], Y: v[1], Z: v[2]} }
func toWire(p Point) [3]float64   { return [3]float64{p.X, p.Y, p.Z} }

// ---------- Decoding ----------

func DecodeFile(path string) (*Beatmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Beatmap, error) {
	var w wireMap
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode beatmap: %w", err)
	}

	b := New(w.BPM)
	b.StartMeasure = Tick(w.StartMeasure)
	b.StartTime = w.StartTime
	b.Length = w.Length
	b.Effects = orEmpty(w.Effects)
	b.Jumps = orEmpty(w.Jumps)
	b.Crouchs = orEmpty(w.Crouchs)
	b.Squares = orEmpty(w.Squares)
	b.Triangles = orEmpty(w.Triangles)
	b.Slides = orEmpty(w.Slides)
	b.Lights = orEmpty(w.Lights)

	if len(w.Notes) == 0 || string(w.Notes) == "null" {
		return b, nil
	}
	var notes map[string][]wireNote
	if err := json.Unmarshal(w.Notes, &notes); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	for key, list := range notes {
		tick, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid note key %q: %w", key, err)
		}
		for _, n := range list {
			if n.Type < 0 || n.Type >= len(noteTypeNames) {
				return nil, fmt.Errorf("note at %d: invalid type %d", tick, n.Type)
			}
			t := NoteType(n.Type)
			if n.Segments == nil {
				b.Add(Tick(tick), NewSingle(t, fromWire(n.Position)))
				continue
			}
			rail := Rail{Base: Base{Type: t, Position: fromWire(n.Position)}, Segments: make([]Point, 0, len(n.Segments))}
			for _, s := range n.Segments {
				rail.Segments = append(rail.Segments, fromWire(s))
			}
			b.Add(Tick(tick), rail)
		}
	}
	return b, nil
}

func orEmpty(v []json.RawMessage) []json.RawMessage {
	if v == nil {
		return []json.RawMessage{}
	}
	return v
}

// ---------- Encoding ----------

func EncodeFile(path string, b *Beatmap) error {
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func Encode(w io.Writer, b *Beatmap) error {
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Marshal serializes b with notes keyed in ascending tick order.
func Marshal(b *Beatmap) ([]byte, error) {
	notes, err := marshalNotes(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMap{
		BPM:          b.BPM,
		StartMeasure: int64(b.StartMeasure),
		StartTime:    b.StartTime,
		Length:       b.Length,
		Notes:        notes,
		Effects:      orEmpty(b.Effects),
		Jumps:        orEmpty(b.Jumps),
		Crouchs:      orEmpty(b.Crouchs),
		Squares:      orEmpty(b.Squares),
		Triangles:    orEmpty(b.Triangles),
		Slides:       orEmpty(b.Slides),
		Lights:       orEmpty(b.Lights),
	})
}

func marshalNotes(b *Beatmap) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tick := range b.Ticks() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.FormatInt(int64(tick), 10)))
		buf.WriteByte(':')

		list := b.Notes[tick]
		out := make([]wireNote, 0, len(list))
		for _, p := range list {
			n := wireNote{Position: toWire(p.Head()), Type: int(p.NoteType())}
			if rail, ok := p.(Rail); ok {
				n.Segments = make([][3]float64, 0, len(rail.Segments))
				for _, s := range rail.Segments {
					n.Segments = append(n.Segments, toWire(s))
				}
			}
			out = append(out, n)
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode notes at %d: %w", tick, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
