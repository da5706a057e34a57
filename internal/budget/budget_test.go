package budget

import (
	"errors"
	"testing"
	"time"
)

// fakeClock lets tests control the day boundary.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestSpend_UpToMax(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	tr := NewTracker(3, clock.Now)

	for i := range 3 {
		if err := tr.Spend(); err != nil {
			t.Fatalf("Spend() call %d failed: %v", i, err)
		}
	}
	if err := tr.Spend(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Spend() after max = %v, want ErrExhausted", err)
	}
	if got := tr.Used(); got != 3 {
		t.Errorf("Used() = %d, want 3 (exhausted spend must not consume)", got)
	}
}

func TestSpend_ResetsAtUTCDayBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)}
	tr := NewTracker(1, clock.Now)

	if err := tr.Spend(); err != nil {
		t.Fatalf("first Spend() failed: %v", err)
	}
	if err := tr.Spend(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("second Spend() = %v, want ErrExhausted", err)
	}

	clock.now = time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)
	if err := tr.Spend(); err != nil {
		t.Errorf("Spend() after day rollover = %v, want nil", err)
	}
	if got := tr.Used(); got != 1 {
		t.Errorf("Used() after rollover = %d, want 1", got)
	}
}

func TestRestore_SeedsCounter(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	tr := NewTracker(5, clock.Now)

	tr.Restore(4)
	if got := tr.Remaining(); got != 1 {
		t.Errorf("Remaining() after Restore(4) = %d, want 1", got)
	}

	// Restoring above max clamps rather than going negative.
	tr2 := NewTracker(5, clock.Now)
	tr2.Restore(10)
	if got := tr2.Remaining(); got != 0 {
		t.Errorf("Remaining() after Restore(10) = %d, want 0", got)
	}
	if err := tr2.Spend(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Spend() after clamped restore = %v, want ErrExhausted", err)
	}
}

func TestRestore_NeverLowersCount(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	tr := NewTracker(5, clock.Now)
	for range 3 {
		if err := tr.Spend(); err != nil {
			t.Fatalf("Spend() failed: %v", err)
		}
	}
	tr.Restore(1)
	if got := tr.Used(); got != 3 {
		t.Errorf("Used() after lower Restore = %d, want 3", got)
	}
}
