package server

import "time"

// pollTimer is a polled interval timer. Nothing fires; callers ask on
// each tick whether the interval has elapsed.
type pollTimer struct {
	interval time.Duration
	start    time.Time
}

func newPollTimer(interval time.Duration) *pollTimer {
	return &pollTimer{
		interval: interval,
		start:    time.Now(),
	}
}

// Check reports whether the interval has elapsed and, if so, restarts
// the timer.
func (t *pollTimer) Check() bool {
	if time.Since(t.start) < t.interval {
		return false
	}
	t.start = time.Now()
	return true
}

// Remaining returns the time left until the interval elapses, never
// negative.
func (t *pollTimer) Remaining() time.Duration {
	left := t.interval - time.Since(t.start)
	if left < 0 {
		return 0
	}
	return left
}
