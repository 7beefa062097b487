package common

import (
	"time"

	"k8s.io/utils/clock"
)

// Clock is the subset of k8s.io/utils/clock the timers in this module rely on.
// Production code uses RealClock; tests pass a *testing.FakeClock and step it.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clock.Timer
	NewTicker(d time.Duration) clock.Ticker
}

// RealClock is the wall clock.
var RealClock Clock = clock.RealClock{}

// OrRealClock returns c, or RealClock when c is nil.
func OrRealClock(c Clock) Clock {
	if c == nil {
		return RealClock
	}
	return c
}
