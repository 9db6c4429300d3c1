package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Timers fire synchronously,
// in deadline order, on the goroutine that calls Advance.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake creates a Fake positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc registers fn to run when the fake time reaches now+d.
// A non-positive d fires on the next Advance call, not immediately.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{clk: f, when: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the fake time forward by d, firing due timers in deadline
// order. Callbacks run with the fake time set to their deadline, so a
// callback that re-arms a timer observes consistent time.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		t := f.nextDueLocked(target)
		if t == nil {
			break
		}

		if t.when.After(f.now) {
			f.now = t.when
		}
		fn := t.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	f.now = target
	f.mu.Unlock()
}

// Pending returns the number of armed timers. Useful for asserting that no
// reconnect or flush is scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// nextDueLocked removes and returns the earliest timer with a deadline at or
// before target, or nil.
func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	sort.SliceStable(f.timers, func(i, j int) bool {
		return f.timers[i].when.Before(f.timers[j].when)
	})

	if len(f.timers) == 0 || f.timers[0].when.After(target) {
		return nil
	}

	t := f.timers[0]
	f.timers = f.timers[1:]
	return t
}

type fakeTimer struct {
	clk  *Fake
	when time.Time
	fn   func()
}

// Stop removes the timer from its clock. It reports whether the timer was
// still armed.
func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()

	for i, armed := range t.clk.timers {
		if armed == t {
			t.clk.timers = append(t.clk.timers[:i], t.clk.timers[i+1:]...)
			return true
		}
	}
	return false
}
