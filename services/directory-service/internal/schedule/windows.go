package schedule

import (
	"sort"
	"time"
)

// Window is a half-open [Start, End) span of a consultant's working day.
type Window struct {
	Start time.Time
	End   time.Time
}

// WeeklyHours is one weekday row of a consultant's recurring template,
// expressed as minutes from midnight.
type WeeklyHours struct {
	Weekday     int
	IsWorking   bool
	StartMinute int
	EndMinute   int
}

// DayWindow places the weekday template onto a concrete calendar day.
func DayWindow(day time.Time, wh WeeklyHours) (Window, bool) {
	if !wh.IsWorking || wh.EndMinute <= wh.StartMinute {
		return Window{}, false
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return Window{
		Start: midnight.Add(time.Duration(wh.StartMinute) * time.Minute),
		End:   midnight.Add(time.Duration(wh.EndMinute) * time.Minute),
	}, true
}

// Subtract removes blackout spans from the base working window and returns
// the remaining open windows in order. Blackouts are clipped to the base,
// then merged, so overlapping and out-of-range entries are handled.
func Subtract(base Window, blackouts []Window) []Window {
	if !base.End.After(base.Start) {
		return nil
	}

	var clipped []Window
	for _, b := range blackouts {
		s, e := b.Start.UTC(), b.End.UTC()
		if e.Before(base.Start) || !s.Before(base.End) {
			continue
		}
		if s.Before(base.Start) {
			s = base.Start
		}
		if e.After(base.End) {
			e = base.End
		}
		if e.After(s) {
			clipped = append(clipped, Window{Start: s, End: e})
		}
	}
	if len(clipped) == 0 {
		return []Window{base}
	}

	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start.Before(clipped[j].Start) })
	merged := make([]Window, 0, len(clipped))
	for _, cur := range clipped {
		if len(merged) == 0 {
			merged = append(merged, cur)
			continue
		}
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}

	var open []Window
	cursor := base.Start
	for _, block := range merged {
		if block.Start.After(cursor) {
			open = append(open, Window{Start: cursor, End: block.Start})
		}
		if block.End.After(cursor) {
			cursor = block.End
		}
	}
	if base.End.After(cursor) {
		open = append(open, Window{Start: cursor, End: base.End})
	}
	return open
}
