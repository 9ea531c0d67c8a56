package audiotrip

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Event type codes used by the editor.
const (
	TypeLeftGem     = 1
	TypeRightGem    = 2
	TypeLeftRibbon  = 3
	TypeRightRibbon = 4
)

// ---------- Song model ----------

type Song struct {
	Metadata       Metadata       `json:"metadata"`
	Choreographies Choreographies `json:"choreographies"`
}

type Metadata struct {
	Title                string         `json:"title"`
	Artist               string         `json:"artist"`
	AvgBPM               float64        `json:"avgBPM"`
	SongEndTimeInSeconds float64        `json:"songEndTimeInSeconds"`
	TempoSections        []TempoSection `json:"tempoSections"`
}

type TempoSection struct {
	StartTimeInSeconds  float64 `json:"startTimeInSeconds"`
	BeatsPerMinute      float64 `json:"beatsPerMinute"`
	DoesStartNewMeasure bool    `json:"doesStartNewMeasure"`
}

type Choreographies struct {
	List []Choreography `json:"list"`
}

type Choreography struct {
	Header struct {
		Name string `json:"name"`
	} `json:"header"`
	Data struct {
		Events []Event `json:"events"`
	} `json:"data"`
}

// Event is one gem or ribbon. Time and Position are pointers so that missing
// fields can be told apart from zero values.
type Event struct {
	Time         *Time  `json:"time"`
	Type         int    `json:"type"`
	Position     *Vec3  `json:"position"`
	BeatDivision int    `json:"beatDivision"`
	SubPositions []Vec3 `json:"subPositions"`
}

type Time struct {
	Beat        int `json:"beat"`
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

// Beats is the event time in beats.
func (t Time) Beats() float64 {
	return float64(t.Beat) + float64(t.Numerator)/float64(t.Denominator)
}

type Vec3 struct{ X, Y, Z float64 }

func (e Event) IsGem() bool    { return e.Type == TypeLeftGem || e.Type == TypeRightGem }
func (e Event) IsRibbon() bool { return e.Type == TypeLeftRibbon || e.Type == TypeRightRibbon }

// ---------- Public API ----------

func DecodeFile(path string) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Song, error) {
	var s Song
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode ats: %w", err)
	}
	return &s, nil
}

// LeadIn is the start of the first tempo section that opens a measure, in
// seconds.
func (s *Song) LeadIn() (float64, error) {
	for _, section := range s.Metadata.TempoSections {
		if section.DoesStartNewMeasure {
			return section.StartTimeInSeconds, nil
		}
	}
	return 0, errors.New("no tempo section starts a measure")
}

// Choreography returns the choreography called name, or the one with the most
// events when name is empty or unknown.
func (s *Song) Choreography(name string) (*Choreography, error) {
	list := s.Choreographies.List
	if len(list) == 0 {
		return nil, errors.New("song has no choreographies")
	}
	if name != "" {
		for i := range list {
			if list[i].Header.Name == name {
				return &list[i], nil
			}
		}
	}
	best := 0
	for i := range list {
		if len(list[i].Data.Events) > len(list[best].Data.Events) {
			best = i
		}
	}
	return &list[best], nil
}
