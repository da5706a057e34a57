// Package budget enforces the daily provider-call cap. Every attempt against
// a provider consumes one unit, successful or not: failed calls still cost
// money and quota upstream.
package budget

import (
	"errors"
	"sync"
	"time"
)

// ErrExhausted is returned once the daily cap is reached. Callers must not
// perform any outbound provider call after seeing it.
var ErrExhausted = errors.New("daily call budget exhausted")

// Tracker is a process-local counter of provider call attempts with a hard
// daily maximum. The counter resets at each UTC day boundary.
type Tracker struct {
	mu    sync.Mutex
	max   int
	count int
	day   time.Time // UTC midnight of the day the count belongs to
	now   func() time.Time
}

// NewTracker creates a Tracker allowing max calls per UTC day. If max <= 0
// the tracker allows nothing, which is a configuration mistake surfaced by
// config validation before it gets here.
func NewTracker(max int, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{max: max, now: now}
	t.day = dayOf(now())
	return t
}

// Restore seeds the counter, typically from the journal after a restart so a
// crash cannot reset the day's spend. Counts above max are clamped.
func (t *Tracker) Restore(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if count > t.max {
		count = t.max
	}
	if count > t.count {
		t.count = count
	}
}

// Spend consumes one call from today's budget. It returns ErrExhausted,
// without consuming, when the cap is already reached.
func (t *Tracker) Spend() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	if t.count >= t.max {
		return ErrExhausted
	}
	t.count++
	return nil
}

// Used returns how many calls today's budget has consumed.
func (t *Tracker) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.count
}

// Remaining returns how many calls are left today.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.max - t.count
}

// Max returns the configured daily cap.
func (t *Tracker) Max() int {
	return t.max
}

// rollover resets the counter when the UTC day has changed. Callers hold mu.
func (t *Tracker) rollover() {
	today := dayOf(t.now())
	if !today.Equal(t.day) {
		t.day = today
		t.count = 0
	}
}

func dayOf(ts time.Time) time.Time {
	return ts.UTC().Truncate(24 * time.Hour)
}
