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
		t.Errorf("RealClock.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClockTimerFires(t *testing.T) {
	c := RealClock{}
	timer := c.NewTimer(time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
}

func TestMockClockAdvanceFiresTimer(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	timer := c.NewTimer(500 * time.Millisecond)

	c.Advance(100 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("timer fired before deadline")
	default:
	}

	c.Advance(400 * time.Millisecond)
	select {
	case now := <-timer.C():
		if !now.Equal(base.Add(500 * time.Millisecond)) {
			t.Errorf("timer fired at %v, want %v", now, base.Add(500*time.Millisecond))
		}
	default:
		t.Fatal("timer did not fire after deadline")
	}
}

func TestMockTimerStop(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	timer := c.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop() on pending timer should report true")
	}
	if timer.Stop() {
		t.Error("second Stop() should report false")
	}

	c.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestMockClockSince(t *testing.T) {
	base := time.Unix(1000, 0)
	c := NewMockClock(base)
	c.Advance(3 * time.Second)
	if got := c.Since(base); got != 3*time.Second {
		t.Errorf("Since = %v, want 3s", got)
	}
}
