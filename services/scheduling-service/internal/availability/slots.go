package availability

import "time"

// Interval is a half-open [Start, End) time range. All intervals handled by
// this package are expected to be in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Slot is one grid cell of a consultant's day. Unavailable cells are kept in
// the sequence so callers can render a full grid; only available cells are
// bookable starts.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// DaySlots expands open windows into a step-aligned slot grid and tags each
// cell against busy intervals and the current time. Cells are aligned to each
// window's start and only emitted when they fit fully inside the window.
func DaySlots(windows []Interval, step time.Duration, busy []Interval, now time.Time) []Slot {
	if step <= 0 {
		return nil
	}

	var slots []Slot
	for _, win := range windows {
		if !win.Valid() {
			continue
		}
		for t := win.Start; !t.Add(step).After(win.End); t = t.Add(step) {
			cell := Interval{Start: t, End: t.Add(step)}
			slots = append(slots, Slot{
				Start:     cell.Start,
				End:       cell.End,
				Available: !t.Before(now) && !overlapsAny(cell, busy),
			})
		}
	}
	return slots
}

// Fits reports whether a booking of the given duration starting at start is
// admissible: step-aligned within one open window, fully contained by it, not
// intersecting any busy interval, and not in the past.
func Fits(windows []Interval, busy []Interval, start time.Time, duration, step time.Duration, now time.Time) bool {
	if duration <= 0 || step <= 0 || start.Before(now) {
		return false
	}

	want := Interval{Start: start, End: start.Add(duration)}
	for _, win := range windows {
		if !win.Valid() || !win.Contains(want) {
			continue
		}
		if offset := start.Sub(win.Start); offset%step != 0 {
			return false
		}
		return !overlapsAny(want, busy)
	}
	return false
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
