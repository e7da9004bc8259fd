package schedule

import (
	"testing"
	"time"
)

func at(t *testing.T, hour, min int) time.Time {
	t.Helper()
	return time.Date(2026, 3, 9, hour, min, 0, 0, time.UTC)
}

func TestDayWindow(t *testing.T) {
	day := time.Date(2026, 3, 9, 12, 34, 0, 0, time.UTC)

	w, ok := DayWindow(day, WeeklyHours{Weekday: 1, IsWorking: true, StartMinute: 540, EndMinute: 1020})
	if !ok {
		t.Fatalf("expected a window")
	}
	if !w.Start.Equal(at(t, 9, 0)) || !w.End.Equal(at(t, 17, 0)) {
		t.Fatalf("window = %s..%s", w.Start, w.End)
	}

	if _, ok := DayWindow(day, WeeklyHours{Weekday: 0, IsWorking: false}); ok {
		t.Fatalf("non-working day produced a window")
	}
	if _, ok := DayWindow(day, WeeklyHours{IsWorking: true, StartMinute: 600, EndMinute: 600}); ok {
		t.Fatalf("empty template produced a window")
	}
}

func TestSubtract(t *testing.T) {
	base := Window{Start: at(t, 9, 0), End: at(t, 17, 0)}

	t.Run("no blackouts", func(t *testing.T) {
		got := Subtract(base, nil)
		if len(got) != 1 || got[0] != base {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("lunch break splits the day", func(t *testing.T) {
		got := Subtract(base, []Window{{Start: at(t, 12, 0), End: at(t, 13, 0)}})
		want := []Window{
			{Start: at(t, 9, 0), End: at(t, 12, 0)},
			{Start: at(t, 13, 0), End: at(t, 17, 0)},
		}
		assertWindows(t, got, want)
	})

	t.Run("overlapping blackouts merge", func(t *testing.T) {
		got := Subtract(base, []Window{
			{Start: at(t, 10, 0), End: at(t, 12, 0)},
			{Start: at(t, 11, 0), End: at(t, 13, 0)},
		})
		want := []Window{
			{Start: at(t, 9, 0), End: at(t, 10, 0)},
			{Start: at(t, 13, 0), End: at(t, 17, 0)},
		}
		assertWindows(t, got, want)
	})

	t.Run("blackout clipped to base", func(t *testing.T) {
		got := Subtract(base, []Window{{Start: at(t, 7, 0), End: at(t, 10, 0)}})
		assertWindows(t, got, []Window{{Start: at(t, 10, 0), End: at(t, 17, 0)}})
	})

	t.Run("blackout outside base ignored", func(t *testing.T) {
		got := Subtract(base, []Window{{Start: at(t, 18, 0), End: at(t, 19, 0)}})
		assertWindows(t, got, []Window{base})
	})

	t.Run("full-day blackout empties the schedule", func(t *testing.T) {
		got := Subtract(base, []Window{{Start: at(t, 8, 0), End: at(t, 18, 0)}})
		if len(got) != 0 {
			t.Fatalf("got %+v, want none", got)
		}
	})
}

func assertWindows(t *testing.T, got, want []Window) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d windows, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window %d = %s..%s, want %s..%s", i, got[i].Start, got[i].End, want[i].Start, want[i].End)
		}
	}
}
