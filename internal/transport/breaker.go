package transport

import (
	"time"

	"github.com/sweeney/sump-controller/internal/timer"
)

// Breaker reports the transport unhealthy for a cool-down after each failure.
// When the cool-down elapses it reports healthy once and re-arms, so a dead
// server gets one probe per cool-down instead of one per tick.
type Breaker struct {
	timer *timer.Timer
	last  time.Duration
}

// NewBreaker creates a closed breaker.
func NewBreaker(now func() time.Time) *Breaker {
	return &Breaker{timer: timer.New(now)}
}

// Trip starts or extends the cool-down to d from now.
func (b *Breaker) Trip(d time.Duration) {
	b.last = d
	b.timer.Reset(d)
}

// Close cancels any cool-down.
func (b *Breaker) Close() {
	b.timer.Cancel()
}

// Healthy reports whether a send may go ahead.
func (b *Breaker) Healthy() bool {
	if !b.timer.IsTiming() {
		return true
	}
	if !b.timer.IsTimedOut() {
		return false
	}
	b.timer.Reset(b.last)
	return true
}

// Deadline returns the end of the current cool-down, or the zero time.
func (b *Breaker) Deadline() time.Time {
	return b.timer.Deadline()
}
