package availability

import (
	"testing"
	"time"
)

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
}

func TestDaySlots_FullGrid(t *testing.T) {
	d := day(t)
	windows := []Interval{
		{Start: d.Add(8 * time.Hour), End: d.Add(12 * time.Hour)},
		{Start: d.Add(13 * time.Hour), End: d.Add(17 * time.Hour)},
	}

	slots := DaySlots(windows, 15*time.Minute, nil, d)
	if len(slots) != 32 {
		t.Fatalf("expected 32 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if !s.Available {
			t.Fatalf("expected all slots available, %s is not", s.Start.Format(time.RFC3339))
		}
		// Nothing inside the midday break.
		if !s.Start.Before(d.Add(12*time.Hour)) && s.Start.Before(d.Add(13*time.Hour)) {
			t.Fatalf("slot %s falls inside the 12:00-13:00 break", s.Start.Format(time.RFC3339))
		}
	}
	if !slots[0].Start.Equal(d.Add(8 * time.Hour)) {
		t.Fatalf("expected first slot 08:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[31].Start.Equal(d.Add(16*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected last slot 16:45, got %s", slots[31].Start.Format(time.RFC3339))
	}
}

func TestDaySlots_BusyIntervalRemovesCoveredCells(t *testing.T) {
	d := day(t)
	windows := []Interval{
		{Start: d.Add(8 * time.Hour), End: d.Add(12 * time.Hour)},
		{Start: d.Add(13 * time.Hour), End: d.Add(17 * time.Hour)},
	}
	busy := []Interval{
		{Start: d.Add(9 * time.Hour), End: d.Add(10 * time.Hour)},
	}

	slots := DaySlots(windows, 15*time.Minute, busy, d)
	if len(slots) != 32 {
		t.Fatalf("expected 32 slots, got %d", len(slots))
	}

	var unavailable []time.Time
	for _, s := range slots {
		if !s.Available {
			unavailable = append(unavailable, s.Start)
		}
	}
	if len(unavailable) != 4 {
		t.Fatalf("expected the 4 cells under the 09:00-10:00 booking to be unavailable, got %d", len(unavailable))
	}
	for i, want := range []time.Duration{9 * time.Hour, 9*time.Hour + 15*time.Minute, 9*time.Hour + 30*time.Minute, 9*time.Hour + 45*time.Minute} {
		if !unavailable[i].Equal(d.Add(want)) {
			t.Fatalf("unexpected unavailable cell %s", unavailable[i].Format(time.RFC3339))
		}
	}
}

func TestDaySlots_PastCellsUnavailable(t *testing.T) {
	d := day(t)
	windows := []Interval{{Start: d.Add(9 * time.Hour), End: d.Add(10 * time.Hour)}}
	now := d.Add(9*time.Hour + 31*time.Minute)

	slots := DaySlots(windows, 15*time.Minute, nil, now)
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	// 09:00, 09:15, 09:30 have started already; only 09:45 remains bookable.
	for _, s := range slots[:3] {
		if s.Available {
			t.Fatalf("expected past slot %s unavailable", s.Start.Format(time.RFC3339))
		}
	}
	if !slots[3].Available {
		t.Fatalf("expected 09:45 available")
	}
}

func TestDaySlots_NoWindows(t *testing.T) {
	if got := DaySlots(nil, 15*time.Minute, nil, day(t)); got != nil {
		t.Fatalf("expected nil slots for empty windows, got %d", len(got))
	}
}

func TestDaySlots_Deterministic(t *testing.T) {
	d := day(t)
	windows := []Interval{{Start: d.Add(8 * time.Hour), End: d.Add(12 * time.Hour)}}
	busy := []Interval{{Start: d.Add(9 * time.Hour), End: d.Add(9*time.Hour + 45*time.Minute)}}

	a := DaySlots(windows, 15*time.Minute, busy, d)
	b := DaySlots(windows, 15*time.Minute, busy, d)
	if len(a) != len(b) {
		t.Fatalf("slot counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs between identical calls", i)
		}
	}
}

func TestFits(t *testing.T) {
	d := day(t)
	windows := []Interval{
		{Start: d.Add(8 * time.Hour), End: d.Add(12 * time.Hour)},
		{Start: d.Add(13 * time.Hour), End: d.Add(17 * time.Hour)},
	}
	busy := []Interval{{Start: d.Add(9 * time.Hour), End: d.Add(10 * time.Hour)}}
	hour := 60 * time.Minute
	step := 15 * time.Minute

	cases := []struct {
		name     string
		start    time.Duration
		duration time.Duration
		want     bool
	}{
		{"open morning start", 8 * time.Hour, hour, true},
		{"collides with booking", 9*time.Hour + 15*time.Minute, hour, false},
		{"abuts booking end", 10 * time.Hour, hour, true},
		{"overlaps into booking", 8*time.Hour + 30*time.Minute, hour, false},
		{"spans midday break", 11*time.Hour + 30*time.Minute, hour, false},
		{"afternoon window", 13 * time.Hour, hour, true},
		{"runs past closing", 16*time.Hour + 30*time.Minute, hour, false},
		{"off grid", 8*time.Hour + 5*time.Minute, hour, false},
		{"last short session", 16*time.Hour + 45*time.Minute, step, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Fits(windows, busy, d.Add(tc.start), tc.duration, step, d)
			if got != tc.want {
				t.Fatalf("Fits(%s) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestFits_PastStart(t *testing.T) {
	d := day(t)
	windows := []Interval{{Start: d.Add(8 * time.Hour), End: d.Add(12 * time.Hour)}}
	now := d.Add(9 * time.Hour)
	if Fits(windows, nil, d.Add(8*time.Hour), 60*time.Minute, 15*time.Minute, now) {
		t.Fatalf("expected past start rejected")
	}
}
