// Package clock abstracts time for components that arm timers, so tests can
// drive coalescing windows and reconnect delays deterministically instead of
// sleeping.
package clock

import "time"

// Timer is a pending callback armed via Clock.AfterFunc.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// callback from firing.
	Stop() bool
}

// Clock provides the current time and one-shot callback timers.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn on its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// System returns a Clock backed by the time package.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
