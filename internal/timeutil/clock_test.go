package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClockSince(t *testing.T) {
	c := RealClock{}
	start := time.Now().Add(-time.Second)
	if d := c.Since(start); d < time.Second {
		t.Errorf("Since() = %v, want at least 1s", d)
	}
}

func TestMockClockNowAndAdvance(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	if got := c.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(base.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v", got)
	}
}

func TestMockClockSince(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	c.Advance(5 * time.Minute)

	if d := c.Since(base); d != 5*time.Minute {
		t.Errorf("Since() = %v, want 5m", d)
	}
}

func TestMockClockSleepRecordsAndAdvances(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	c.Sleep(2 * time.Second)
	c.Sleep(3 * time.Second)

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 3*time.Second {
		t.Errorf("Sleeps() = %v", sleeps)
	}
	if got := c.Now(); !got.Equal(base.Add(5 * time.Second)) {
		t.Errorf("Now() after sleeps = %v", got)
	}
}
