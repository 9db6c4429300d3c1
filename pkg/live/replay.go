package live

import (
	"time"

	"github.com/simdeck/simdeck/pkg/wire"
)

// Rebuild folds an archived event sequence into a fresh Store, grouping
// events into batches the way the live coalescing window would have: a batch
// collects every event whose server timestamp falls within window of the
// batch's first event. Events without timestamps join the current batch.
// Each batch goes through the same reducer as the live path, so the replayed
// state matches what a live session would have derived; inv, when non-nil,
// receives the same invalidations.
func Rebuild(events []wire.Event, window time.Duration, inv Invalidator) *Store {
	s := NewStore(DefaultMessageCap, DefaultHistoryCap)
	if len(events) == 0 {
		return s
	}
	if window <= 0 {
		window = DefaultBatchWindow
	}

	var (
		batch []wire.Event
		open  time.Time
	)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		now := open
		if now.IsZero() {
			now = time.Now()
		}
		scopes := s.applyBatch(batch, now)
		if inv != nil {
			for _, sc := range scopes {
				inv.Invalidate(sc)
			}
		}
		batch = batch[:0]
		open = time.Time{}
	}

	for _, ev := range events {
		ts := ev.Timestamp
		if !ts.IsZero() {
			if open.IsZero() {
				open = ts
			} else if ts.Sub(open) > window {
				flush()
				open = ts
			}
		}
		batch = append(batch, ev)
	}
	flush()

	return s
}
