package clock

import (
	"fmt"
	"time"
)

// Gate decides whether a pipeline invocation falls inside the daily
// capture window. The window is expressed in civil wall-clock time for a
// named zone, so the same gate is correct on both sides of a
// daylight-saving transition: the zone rules are consulted on every call
// rather than baking in a UTC offset.
type Gate struct {
	loc      *time.Location
	startMin int // minutes after local midnight, inclusive
	endMin   int // minutes after local midnight, exclusive
}

// NewGate builds a gate for the zone named by tz with a [start, end)
// window given as "HH:MM" civil times.
func NewGate(tz, start, end string) (*Gate, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	startMin, err := parseCivilTime(start)
	if err != nil {
		return nil, fmt.Errorf("window start: %w", err)
	}
	endMin, err := parseCivilTime(end)
	if err != nil {
		return nil, fmt.Errorf("window end: %w", err)
	}
	if endMin <= startMin {
		return nil, fmt.Errorf("window end %s must be after start %s", end, start)
	}

	return &Gate{loc: loc, startMin: startMin, endMin: endMin}, nil
}

// ShouldRun reports whether now falls inside the capture window.
func (g *Gate) ShouldRun(now time.Time) bool {
	local := now.In(g.loc)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= g.startMin && minutes < g.endMin
}

// Location returns the gate's civil time zone, shared with the rest of
// the pipeline so "today" and "yesterday" are computed consistently.
func (g *Gate) Location() *time.Location {
	return g.loc
}

func parseCivilTime(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse civil time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
