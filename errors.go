package main

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEvent marks a source event with missing fields or
	// non-finite numbers. The import that hit it returns no Beatmap.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrDanglingHoldEnd marks a hold tail with no open hold in its lane.
	ErrDanglingHoldEnd = errors.New("hold end without hold start")

	ErrUnknownFormat = errors.New("unknown source format")
	ErrNoChart       = errors.New("no matching chart")

	// ErrOutputConflict marks a source whose map would overwrite one that
	// another source of the same batch writes.
	ErrOutputConflict = errors.New("output written by another source")
)

func malformed(index int, format string, a ...any) error {
	return fmt.Errorf("event %d: %s: %w", index, fmt.Sprintf(format, a...), ErrMalformedEvent)
}

// errorKind names the taxonomy bucket of err for the failure log.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedEvent):
		return "malformed_event"
	case errors.Is(err, ErrDanglingHoldEnd):
		return "dangling_hold_end"
	case errors.Is(err, ErrUnknownFormat):
		return "unknown_format"
	case errors.Is(err, ErrNoChart):
		return "no_chart"
	case errors.Is(err, ErrOutputConflict):
		return "output_conflict"
	default:
		return "io"
	}
}
