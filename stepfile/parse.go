package stepfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Glyphs used in note rows.
const (
	GlyphEmpty    = '0'
	GlyphTap      = '1'
	GlyphHoldHead = '2'
	GlyphTail     = '3'
	GlyphRollHead = '4'
	GlyphMine     = 'M'
	GlyphLift     = 'L'
	GlyphFake     = 'F'
)

// ---------- Simfile model ----------

type Simfile struct {
	Title    string
	Subtitle string
	Artist   string
	Music    string

	// Offset is the #OFFSET value: the negated time in seconds at which beat
	// 0 occurs.
	Offset float64
	BPMs   []BPMChange
	Charts []Chart
}

type BPMChange struct {
	Beat float64
	BPM  float64
}

type Chart struct {
	StepsType   string
	Description string
	Difficulty  string
	Meter       int

	// Measures holds the rows of each measure; every row has one glyph per
	// lane.
	Measures [][]string
}

// BPM returns the tempo at beat 0.
func (s *Simfile) BPM() float64 {
	if len(s.BPMs) == 0 {
		return 0
	}
	return s.BPMs[0].BPM
}

// Lanes is the row width of the chart, 0 when it holds no rows.
func (c *Chart) Lanes() int {
	for _, m := range c.Measures {
		for _, row := range m {
			return len(row)
		}
	}
	return 0
}

// ---------- Public API ----------

func DecodeFile(path string) (*Simfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Simfile, error) {
	// .sm files written by Windows editors often carry a BOM.
	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	sc := bufio.NewScanner(r)
	const maxLine = 1024 * 1024
	buf := make([]byte, 64*1024)
	sc.Buffer(buf, maxLine)

	var body strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	s := &Simfile{}
	for _, tag := range splitTags(body.String()) {
		k, v := splitKeyVal(tag)
		switch strings.ToUpper(k) {
		case "TITLE":
			s.Title = v
		case "SUBTITLE":
			s.Subtitle = v
		case "ARTIST":
			s.Artist = v
		case "MUSIC":
			s.Music = v
		case "OFFSET":
			s.Offset = parseFloat(v, 0)
		case "BPMS":
			bpms, err := parseBPMs(v)
			if err != nil {
				return nil, err
			}
			s.BPMs = bpms
		case "NOTES":
			c, err := parseChart(v)
			if err != nil {
				return nil, fmt.Errorf("chart %d: %w", len(s.Charts), err)
			}
			s.Charts = append(s.Charts, c)
		}
	}
	if s.BPM() <= 0 {
		return nil, errors.New("missing or non-positive #BPMS")
	}
	return s, nil
}

// ---------- parsing helpers ----------

// splitTags returns the bodies of every "#TAG:value;" in the file, without
// the leading '#' and trailing ';'.
func splitTags(body string) []string {
	var tags []string
	for {
		start := strings.IndexByte(body, '#')
		if start < 0 {
			return tags
		}
		body = body[start+1:]
		end := strings.IndexByte(body, ';')
		if end < 0 {
			tags = append(tags, body)
			return tags
		}
		tags = append(tags, body[:end])
		body = body[end+1:]
	}
}

func splitKeyVal(line string) (key, val string) {
	i := strings.Index(line, ":")
	if i < 0 {
		return strings.TrimSpace(line), ""
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseFloat(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func parseBPMs(v string) ([]BPMChange, error) {
	var out []BPMChange
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		beat, bpm, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid #BPMS entry %q", pair)
		}
		b, err := strconv.ParseFloat(strings.TrimSpace(beat), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid #BPMS beat %q: %w", beat, err)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(bpm), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid #BPMS tempo %q: %w", bpm, err)
		}
		out = append(out, BPMChange{Beat: b, BPM: t})
	}
	return out, nil
}

// parseChart reads "type:description:difficulty:meter:radar:data".
func parseChart(v string) (Chart, error) {
	parts := strings.SplitN(v, ":", 6)
	if len(parts) < 6 {
		return Chart{}, fmt.Errorf("expected 6 fields in #NOTES, got %d", len(parts))
	}
	c := Chart{
		StepsType:   strings.TrimSpace(parts[0]),
		Description: strings.TrimSpace(parts[1]),
		Difficulty:  strings.TrimSpace(parts[2]),
		Meter:       parseInt(parts[3], 0),
	}
	width := 0
	for i, measure := range strings.Split(parts[5], ",") {
		rows := strings.Fields(measure)
		for _, row := range rows {
			if width == 0 {
				width = len(row)
			}
			if len(row) != width {
				return Chart{}, fmt.Errorf("measure %d: row %q has %d lanes, want %d", i, row, len(row), width)
			}
		}
		c.Measures = append(c.Measures, rows)
	}
	// A trailing separator leaves an empty last measure.
	if n := len(c.Measures); n > 0 && len(c.Measures[n-1]) == 0 {
		c.Measures = c.Measures[:n-1]
	}
	return c, nil
}
