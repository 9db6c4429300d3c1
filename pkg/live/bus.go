package live

import "sync"

// UpdateKind identifies what a notification reflects.
type UpdateKind string

const (
	// UpdateBatchApplied is published exactly once per flushed batch,
	// after the store transition and before cache invalidation.
	UpdateBatchApplied UpdateKind = "batch_applied"
	// UpdateStatusChanged is published on connection status transitions.
	UpdateStatusChanged UpdateKind = "status_changed"
)

// Update is a notification to subscribers. Consumers read current values
// through the Store selectors; the update itself only says that something
// changed and why.
type Update struct {
	Kind   UpdateKind
	Status Status
	Err    string
	Events int // Number of events folded, for batch updates.
}

// Subscription receives updates from a Bus.
type Subscription struct {
	C  <-chan Update
	ch chan Update
}

// Bus fans out engine updates to all active subscribers. It is safe for
// concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBus creates a Bus ready for use.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Update, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// publish sends an update to all subscribers. If a subscriber's buffer is
// full the update is dropped for that subscriber so a slow consumer cannot
// stall the run loop.
func (b *Bus) publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- u:
		default:
		}
	}
}
