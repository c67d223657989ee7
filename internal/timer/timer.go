// Package timer provides a polled countdown timer.
// Nothing fires asynchronously: expiry is observed only when IsTimedOut is called.
package timer

import "time"

// Timer counts down from a start instant. A zero duration means not timing.
// Not safe for concurrent use; each use-site owns its own Timer.
type Timer struct {
	now      func() time.Time
	start    time.Time
	duration time.Duration
}

// New creates a stopped Timer reading time from now.
// A nil now falls back to time.Now.
func New(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// Start begins counting d from now. It is a no-op if the timer is already timing.
func (t *Timer) Start(d time.Duration) {
	if t.IsTiming() {
		return
	}
	t.Reset(d)
}

// Reset restarts counting d from now, discarding any previous deadline.
// A non-positive d cancels the timer.
func (t *Timer) Reset(d time.Duration) {
	if d <= 0 {
		t.Cancel()
		return
	}
	t.start = t.now()
	t.duration = d
}

// Cancel stops the timer. Safe to call on a stopped timer.
func (t *Timer) Cancel() {
	t.start = time.Time{}
	t.duration = 0
}

// IsTiming reports whether a deadline is set.
func (t *Timer) IsTiming() bool {
	return t.duration > 0
}

// IsTimedOut reports whether the timer is timing and the deadline has passed.
func (t *Timer) IsTimedOut() bool {
	if !t.IsTiming() {
		return false
	}
	return !t.now().Before(t.start.Add(t.duration))
}

// Elapsed returns the time since Start/Reset, or 0 when not timing.
func (t *Timer) Elapsed() time.Duration {
	if !t.IsTiming() {
		return 0
	}
	return t.now().Sub(t.start)
}

// Deadline returns the instant the timer expires, or the zero time when not timing.
func (t *Timer) Deadline() time.Time {
	if !t.IsTiming() {
		return time.Time{}
	}
	return t.start.Add(t.duration)
}
