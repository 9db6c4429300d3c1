package live

import (
	"time"

	"github.com/simdeck/simdeck/pkg/clock"
	"github.com/simdeck/simdeck/pkg/wire"
)

// batcher buffers decoded events inside a fixed coalescing window. The first
// push after a flush arms the timer; pushes that follow within the window
// append without rearming it, which bounds worst-case latency even under a
// sustained event storm. A sliding debounce would not.
//
// The batcher is owned by the client's run loop and is not safe for
// concurrent use on its own.
type batcher struct {
	clk    clock.Clock
	window time.Duration
	fire   func() // Posts the flush back onto the run loop.

	pending []wire.Event
	timer   clock.Timer
}

func newBatcher(clk clock.Clock, window time.Duration, fire func()) *batcher {
	return &batcher{clk: clk, window: window, fire: fire}
}

// push appends an event to the pending buffer, arming the window timer if
// this is the first event since the last flush.
func (b *batcher) push(ev wire.Event) {
	b.pending = append(b.pending, ev)

	if b.timer == nil {
		b.timer = b.clk.AfterFunc(b.window, b.fire)
	}
}

// take swaps the pending buffer for an empty one and clears the timer
// handle. The returned batch preserves arrival order and is handed out
// exactly once.
func (b *batcher) take() []wire.Event {
	batch := b.pending
	b.pending = nil
	b.timer = nil
	return batch
}

// discard drops the pending buffer without flushing. Used on disconnect:
// events delivered to a torn-down surface have no value and the read models
// are about to be reset.
func (b *batcher) discard() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
}

func (b *batcher) len() int { return len(b.pending) }
