package main

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"synthmap/audiotrip"
	"synthmap/stepfile"
	"synthmap/synth"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func measure(rows int, glyphs map[int]string) []string {
	m := make([]string, rows)
	for i := range m {
		m[i] = "0000"
		if g, ok := glyphs[i]; ok {
			m[i] = g
		}
	}
	return m
}

var strictSteps = StepOptions{Resolution: 64, BeatsPerMeasure: 4, StrictHolds: true}

func TestStepHoldBecomesRail(t *testing.T) {
	chart := stepfile.Chart{Measures: [][]string{measure(32, map[int]string{0: "2000", 1: "3000"})}}
	b, err := ImportStepChart(chart, 120, 0, strictSteps)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Ticks(); !reflect.DeepEqual(got, []synth.Tick{0}) {
		t.Fatalf("ticks = %v, want [0]", got)
	}
	if len(b.Notes[0]) != 1 {
		t.Fatalf("got %d placements, want 1", len(b.Notes[0]))
	}
	r, ok := b.Notes[0][0].(synth.Rail)
	if !ok {
		t.Fatalf("placement is %T, want Rail", b.Notes[0][0])
	}
	g := Grid{BPM: 120, Resolution: 64}
	if r.Type != synth.TypeLeft || r.Position.Z != 0 {
		t.Errorf("head = %v %v", r.Type, r.Position)
	}
	if len(r.Segments) != 1 || r.Segments[0].Z != g.TickRender(8) {
		t.Errorf("segments = %v, want one at z %v", r.Segments, g.TickRender(8))
	}
}

func TestStepDanglingTail(t *testing.T) {
	chart := stepfile.Chart{Measures: [][]string{measure(4, map[int]string{0: "1000", 1: "0003"})}}
	if _, err := ImportStepChart(chart, 120, 0, strictSteps); !errors.Is(err, ErrDanglingHoldEnd) {
		t.Fatalf("err = %v, want ErrDanglingHoldEnd", err)
	}

	lenient := strictSteps
	lenient.StrictHolds = false
	b, err := ImportStepChart(chart, 120, 0, lenient)
	if err != nil {
		t.Fatal(err)
	}
	if singles, rails := b.Count(); singles != 1 || rails != 0 {
		t.Fatalf("count = %d singles, %d rails, want 1, 0", singles, rails)
	}
}

func TestStepSidesAndOffset(t *testing.T) {
	chart := stepfile.Chart{Measures: [][]string{
		measure(4, map[int]string{0: "1001", 2: "0110"}),
		measure(4, map[int]string{0: "2000"}),
	}}
	// Beat 0 sits 0.25s into the audio: 32 ticks at 120 BPM.
	b, err := ImportStepChart(chart, 120, -0.25, strictSteps)
	if err != nil {
		t.Fatal(err)
	}
	want := []synth.Tick{32, 160, 288}
	if got := b.Ticks(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ticks = %v, want %v", got, want)
	}
	for _, tick := range want[:2] {
		at := b.Notes[tick]
		if len(at) != 2 || at[0].NoteType() != synth.TypeLeft || at[1].NoteType() != synth.TypeRight {
			t.Errorf("tick %d: %v", tick, at)
		}
	}
	if got := b.Notes[32][1].Head(); got.X != 0.202 || got.Z != 5 {
		t.Errorf("right lane head = %v", got)
	}
	// An unclosed hold stays a single.
	if k := b.Notes[288][0].Kind(); k != synth.KindSingle {
		t.Errorf("unclosed hold kind = %v", k)
	}
}

func TestStepLongestTailWins(t *testing.T) {
	chart := stepfile.Chart{Measures: [][]string{measure(4, map[int]string{0: "2200", 2: "3000", 3: "0300"})}}
	b, err := ImportStepChart(chart, 60, 0, strictSteps)
	if err != nil {
		t.Fatal(err)
	}
	if singles, rails := b.Count(); singles != 0 || rails != 1 {
		t.Fatalf("count = %d singles, %d rails, want 0, 1", singles, rails)
	}
	r := b.Notes[0][0].(synth.Rail)
	if want := NewGrid(60).TickRender(192); r.Tail().Z != want {
		t.Errorf("tail z = %v, want %v", r.Tail().Z, want)
	}
}

func TestStepRejectsBadTempo(t *testing.T) {
	chart := stepfile.Chart{Measures: [][]string{measure(4, nil)}}
	for _, bpm := range []float64{0, -10, math.NaN()} {
		if _, err := ImportStepChart(chart, bpm, 0, strictSteps); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("bpm %v: err = %v", bpm, err)
		}
	}
}

func TestSelectCharts(t *testing.T) {
	sim := &stepfile.Simfile{Charts: []stepfile.Chart{{Difficulty: "Hard"}, {Difficulty: "Easy"}}}
	all, err := SelectCharts(sim, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("all = %v, %v", all, err)
	}
	easy, err := SelectCharts(sim, "Easy")
	if err != nil || len(easy) != 1 || easy[0].Difficulty != "Easy" {
		t.Fatalf("easy = %v, %v", easy, err)
	}
	if _, err := SelectCharts(sim, "Challenge"); !errors.Is(err, ErrNoChart) {
		t.Fatalf("err = %v, want ErrNoChart", err)
	}
}

func handTrack(events ...audiotrip.Event) HandTrack {
	return HandTrack{BPM: 120, LeadIn: 0.5, Events: events}
}

func TestHandTrackGemsAndRibbons(t *testing.T) {
	track := handTrack(
		audiotrip.Event{
			Time:     &audiotrip.Time{Beat: 0, Numerator: 0, Denominator: 1},
			Type:     audiotrip.TypeLeftGem,
			Position: &audiotrip.Vec3{X: 0, Y: 1},
		},
		audiotrip.Event{
			Time:         &audiotrip.Time{Beat: 2, Numerator: 0, Denominator: 1},
			Type:         audiotrip.TypeRightRibbon,
			Position:     &audiotrip.Vec3{X: 0, Y: 1},
			BeatDivision: 4,
			SubPositions: []audiotrip.Vec3{{}, {X: 0.1}, {X: 0.2}},
		},
		audiotrip.Event{Type: 9},
	)
	b, err := ImportHandTrack(track, 64)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Ticks(); !reflect.DeepEqual(got, []synth.Tick{64, 192}) {
		t.Fatalf("ticks = %v", got)
	}

	gem := b.Notes[64][0]
	if gem.Kind() != synth.KindSingle || gem.NoteType() != synth.TypeLeft {
		t.Fatalf("gem = %#v", gem)
	}
	if h := gem.Head(); !near(h.X, 0.002) || !near(h.Y, 0.0012) || h.Z != 10 {
		t.Errorf("gem head = %v", h)
	}

	r, ok := b.Notes[192][0].(synth.Rail)
	if !ok || r.Type != synth.TypeRight {
		t.Fatalf("ribbon = %#v", b.Notes[192][0])
	}
	if r.Position.Z != 30 || len(r.Segments) != 2 {
		t.Fatalf("ribbon = %+v", r)
	}
	if s := r.Segments[0]; !near(s.Z, 32.5) || !near(s.X, 0.9555*0.1+0.002) {
		t.Errorf("first node = %v", s)
	}
	if s := r.Segments[1]; !near(s.Z, 35) {
		t.Errorf("second node z = %v", s.Z)
	}
	if b.Length != 35*1000/20 {
		t.Errorf("length = %v", b.Length)
	}
}

func TestHandTrackMalformed(t *testing.T) {
	tm := &audiotrip.Time{Denominator: 1}
	pos := &audiotrip.Vec3{}
	tests := []struct {
		name string
		ev   audiotrip.Event
	}{
		{"missing time", audiotrip.Event{Type: audiotrip.TypeLeftGem, Position: pos}},
		{"zero denominator", audiotrip.Event{Type: audiotrip.TypeLeftGem, Time: &audiotrip.Time{}, Position: pos}},
		{"missing position", audiotrip.Event{Type: audiotrip.TypeRightGem, Time: tm}},
		{"nan position", audiotrip.Event{Type: audiotrip.TypeRightGem, Time: tm, Position: &audiotrip.Vec3{X: math.NaN()}}},
		{"no division", audiotrip.Event{Type: audiotrip.TypeLeftRibbon, Time: tm, Position: pos, SubPositions: []audiotrip.Vec3{{}, {}}}},
		{"inf node", audiotrip.Event{Type: audiotrip.TypeLeftRibbon, Time: tm, Position: pos, BeatDivision: 2,
			SubPositions: []audiotrip.Vec3{{}, {Y: math.Inf(1)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ImportHandTrack(handTrack(tt.ev), 64)
			if !errors.Is(err, ErrMalformedEvent) || b != nil {
				t.Fatalf("got %v, %v", b, err)
			}
		})
	}
}

func TestHandTrackFromSong(t *testing.T) {
	song := &audiotrip.Song{}
	song.Metadata.AvgBPM = 128
	song.Metadata.TempoSections = []audiotrip.TempoSection{{StartTimeInSeconds: 1.5, DoesStartNewMeasure: true}}
	song.Choreographies.List = make([]audiotrip.Choreography, 1)
	song.Choreographies.List[0].Header.Name = "Expert"

	track, err := HandTrackFromSong(song, "")
	if err != nil {
		t.Fatal(err)
	}
	if track.BPM != 128 || track.LeadIn != 1.5 {
		t.Errorf("track = %+v", track)
	}

	song.Choreographies.List = nil
	if _, err := HandTrackFromSong(song, ""); !errors.Is(err, ErrNoChart) {
		t.Errorf("err = %v, want ErrNoChart", err)
	}
}

func TestEmptyTimeline(t *testing.T) {
	song := &audiotrip.Song{}
	song.Metadata.AvgBPM = 100
	song.Metadata.TempoSections = []audiotrip.TempoSection{{DoesStartNewMeasure: true}}
	song.Choreographies.List = make([]audiotrip.Choreography, 1)
	track, err := HandTrackFromSong(song, "")
	if err != nil {
		t.Fatal(err)
	}
	fromTrack, err := ImportHandTrack(track, 64)
	if err != nil {
		t.Fatal(err)
	}
	fromOnsets, err := ImportOnsets(nil, OnsetOptions{BPM: 120, Resolution: 64})
	if err != nil {
		t.Fatal(err)
	}

	c, err := NewConverter(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	for name, b := range map[string]*synth.Beatmap{"hand track": fromTrack, "onsets": fromOnsets} {
		if b == nil {
			t.Fatalf("%s: nil map", name)
		}
		b = c.finish(b)
		if len(b.Notes) != 0 || b.Length != 0 {
			t.Errorf("%s: %d ticks, length %v", name, len(b.Notes), b.Length)
		}
		data, err := synth.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(data, []byte(`"notes":{}`)) || !bytes.Contains(data, []byte(`"lenght":0`)) {
			t.Errorf("%s: encoded %s", name, data)
		}
	}
}

func TestOnsetFanOut(t *testing.T) {
	b, err := ImportOnsets([]float64{0.5, 1}, OnsetOptions{
		BPM:        120,
		Resolution: 64,
		Lanes:      []synth.NoteType{synth.TypeRight, synth.TypeLeft},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Ticks(); !reflect.DeepEqual(got, []synth.Tick{64, 128}) {
		t.Fatalf("ticks = %v", got)
	}
	at := b.Notes[64]
	if len(at) != 2 {
		t.Fatalf("got %d notes at 64, want 2", len(at))
	}
	if h := at[0].Head(); at[0].NoteType() != synth.TypeRight || h != (synth.Point{X: 0.202, Z: 10}) {
		t.Errorf("right = %v %v", at[0].NoteType(), h)
	}
	if h := at[1].Head(); at[1].NoteType() != synth.TypeLeft || h != (synth.Point{X: -0.108, Z: 10}) {
		t.Errorf("left = %v %v", at[1].NoteType(), h)
	}
}

func TestOnsetRoundingOffsetAndDuplicates(t *testing.T) {
	opts := OnsetOptions{BPM: 60, Resolution: 64}

	b, err := ImportOnsets([]float64{1, 1.001}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if singles, _ := b.Count(); singles != 1 {
		t.Errorf("duplicates kept: %d notes", singles)
	}

	opts.Offset = 0.5
	b, err = ImportOnsets([]float64{1.5}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Ticks(); !reflect.DeepEqual(got, []synth.Tick{64}) {
		t.Errorf("offset ticks = %v", got)
	}

	opts.Offset, opts.Rounding = 0, 4
	b, err = ImportOnsets([]float64{0.3}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Ticks(); !reflect.DeepEqual(got, []synth.Tick{16}) {
		t.Fatalf("rounded ticks = %v", got)
	}
	if z := b.Notes[16][0].Head().Z; z != 5 {
		t.Errorf("rounded z = %v, want 5", z)
	}

	if _, err := ImportOnsets([]float64{math.NaN()}, opts); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}
}

func TestReadOnsetList(t *testing.T) {
	got, err := ReadOnsetList(strings.NewReader("0.5, 1.0\n# header\n1.5\t2;3 # tail\n\n"))
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{0.5, 1, 1.5, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if _, err := ReadOnsetList(strings.NewReader("1.0\nsoon\n")); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}
}

func TestReadMIDIOnsets(t *testing.T) {
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(60))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(0, midi.NoteOn(0, 64, 100))
	tr.Add(960, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 62, 100))
	tr.Add(960, midi.NoteOn(0, 62, 0))
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(960, midi.NoteOn(0, 67, 90))
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(960)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := ReadMIDIOnsets(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.BPM != 60 {
		t.Errorf("bpm = %v, want 60", got.BPM)
	}
	// 2 beats at 60 BPM then 1 beat at 120 BPM.
	want := []float64{0, 1, 2.5}
	if len(got.Times) != len(want) {
		t.Fatalf("times = %v, want %v", got.Times, want)
	}
	for i := range want {
		if !near(got.Times[i], want[i]) {
			t.Errorf("times = %v, want %v", got.Times, want)
			break
		}
	}
}
