package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simdeck/simdeck/pkg/clock"
	"github.com/simdeck/simdeck/pkg/transport"
	"github.com/simdeck/simdeck/pkg/wire"
)

// Engine defaults. The reconnect delay is a fixed constant with no backoff
// or jitter; operators that need either can supply their own Clock.
const (
	DefaultBatchWindow    = 50 * time.Millisecond
	DefaultReconnectDelay = 2 * time.Second
	DefaultMaxReconnects  = 5
	DefaultMessageCap     = 500
	DefaultHistoryCap     = 100

	// disconnectGrace is how long the intentional-disconnect flag stays up
	// after Disconnect. The channel's close notification can arrive after
	// the client already reset its state; without the grace period a
	// slow-closing socket could schedule a reconnect the consumer never
	// asked for.
	disconnectGrace = 100 * time.Millisecond

	// sendTimeout bounds the synchronous pong reply.
	sendTimeout = 5 * time.Second
)

// Options configures a Client. Factory is required; everything else has a
// usable default.
type Options struct {
	Factory     transport.Factory
	Invalidator Invalidator       // Externally owned query cache; nil disables invalidation.
	Clock       clock.Clock       // Defaults to clock.System().
	Log         *slog.Logger      // Defaults to slog.Default().
	Metrics     *Metrics          // Optional Prometheus instruments.
	Recorder    func(wire.Event)  // Optional tap called for every decoded event.

	BatchWindow    time.Duration // Coalescing window (default 50ms).
	ReconnectDelay time.Duration // Delay between reconnect attempts (default 2s).
	MaxReconnects  int           // Attempts before the terminal error state (default 5).
	MessageCap     int           // Live message log capacity (default 500).
	HistoryCap     int           // Diagnostic event history capacity (default 100).
}

// Client is the synchronization engine. It owns at most one transport
// channel at a time and runs all state transitions on a single run-loop
// goroutine; Connect and Disconnect return immediately and report outcomes
// through the store's status and the update bus.
type Client struct {
	opts Options
	clk  clock.Clock
	log  *slog.Logger

	store *Store
	bus   *Bus

	acts      chan func()
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// Set synchronously in Disconnect so close and open races observe it
	// regardless of how far behind the run loop is.
	intentional atomic.Bool

	// Run loop state. Touched only from the loop goroutine.
	target   string
	ch       transport.Channel
	gen      uint64
	status   Status
	lastErr  string
	attempts int
	batch    *batcher

	// lastTarget is the target last written to the store, so a status
	// write that only changes the subscription still propagates.
	lastTarget string

	reconnectTimer clock.Timer
	graceTimer     clock.Timer
}

// New creates a Client and starts its run loop. Callers must Close it.
func New(opts Options) (*Client, error) {
	if opts.Factory == nil {
		return nil, errors.New("live: transport factory is required")
	}

	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.BatchWindow <= 0 {
		opts.BatchWindow = DefaultBatchWindow
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = DefaultMaxReconnects
	}
	if opts.MessageCap <= 0 {
		opts.MessageCap = DefaultMessageCap
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}

	c := &Client{
		opts:   opts,
		clk:    opts.Clock,
		log:    opts.Log,
		store:  NewStore(opts.MessageCap, opts.HistoryCap),
		bus:    NewBus(),
		acts:   make(chan func(), 256),
		done:   make(chan struct{}),
		status: StatusDisconnected,
	}
	c.batch = newBatcher(c.clk, opts.BatchWindow, func() {
		c.post(c.flush)
	})

	c.wg.Add(1)
	go c.run()

	return c, nil
}

// Store exposes the derived read models.
func (c *Client) Store() *Store { return c.store }

// Updates exposes the notification bus. Subscribers see exactly one
// UpdateBatchApplied per coalescing window, no matter how many events the
// window buffered.
func (c *Client) Updates() *Bus { return c.bus }

// Convenience selectors, delegating to the store.

func (c *Client) Status() Status                     { return c.store.Status() }
func (c *Client) IsConnected() bool                  { return c.store.IsConnected() }
func (c *Client) LastError() string                  { return c.store.LastError() }
func (c *Client) LiveMessages() []LiveMessage        { return c.store.LiveMessages() }
func (c *Client) AgentStates() map[string]AgentState { return c.store.AgentStates() }
func (c *Client) CurrentStep() Step                  { return c.store.CurrentStep() }
func (c *Client) Running() bool                      { return c.store.Running() }
func (c *Client) EventHistory() []wire.Event         { return c.store.EventHistory() }

// Connect subscribes to the event feed of the given simulation. A connect
// while another subscription is active supersedes it: the old channel is
// closed first and nothing it delivers afterwards reaches the derived state.
func (c *Client) Connect(simulationID string) {
	if simulationID == "" {
		return
	}
	c.post(func() { c.connect(simulationID) })
}

// Disconnect tears the subscription down. It is idempotent and cancels any
// scheduled reconnect and any pending batch flush.
func (c *Client) Disconnect() {
	c.intentional.Store(true)
	c.post(c.disconnect)
}

// Inject feeds one raw frame through the engine as if the channel had
// delivered it. Intended for diagnostics and offline replay.
func (c *Client) Inject(frame []byte) {
	c.post(func() { c.onFrame(c.gen, frame) })
}

// SendControl writes one control frame on the current channel. The write
// happens on the run loop; errors are logged, not returned.
func (c *Client) SendControl(frame []byte) {
	c.post(func() { c.sendControl(frame) })
}

// Close shuts the run loop down. The client is unusable afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.intentional.Store(true)
		c.post(func() {
			c.stopReconnect()
			c.stopGrace()
			c.batch.discard()
			if c.ch != nil {
				c.ch.Close(transport.ReasonClientDisconnect)
				c.ch = nil
				c.gen++
			}
			close(c.done)
		})
		c.wg.Wait()
	})
}

// run executes posted actions one at a time. Every state transition in the
// engine happens here.
func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.acts:
			fn()
		case <-c.done:
			return
		}
	}
}

// post hands an action to the run loop.
func (c *Client) post(fn func()) {
	select {
	case c.acts <- fn:
	case <-c.done:
	}
}

// --- Run loop actions ---

func (c *Client) connect(id string) {
	if c.target == id && c.status != StatusDisconnected {
		return
	}

	if c.ch != nil {
		// Opening a new channel always abandons the previous one first,
		// with a reason the policy can tell apart from a failure.
		old := c.ch
		c.ch = nil
		c.gen++
		old.Close(transport.ReasonSuperseded)
	}

	c.stopReconnect()
	c.stopGrace()
	c.intentional.Store(false)
	c.batch.discard()
	c.store.reset()

	c.target = id
	c.attempts = 0
	c.openChannel()
}

// openChannel opens a channel to the current target. Callbacks capture the
// channel's generation; anything a stale generation delivers is ignored.
func (c *Client) openChannel() {
	c.gen++
	gen := c.gen

	c.setStatus(StatusConnecting, "")
	c.log.Debug("opening event feed", "simulation", c.target, "attempt", c.attempts)

	c.ch = c.opts.Factory.Open(c.target, transport.Callbacks{
		OnOpen: func() {
			c.post(func() { c.onOpen(gen) })
		},
		OnMessage: func(frame []byte) {
			c.post(func() { c.onFrame(gen, frame) })
		},
		OnClose: func(wasClean bool, code int, reason string) {
			c.post(func() { c.onClose(gen, wasClean, code, reason) })
		},
		OnError: func(err error) {
			c.post(func() { c.onError(gen, err) })
		},
	})
}

func (c *Client) onOpen(gen uint64) {
	if gen != c.gen {
		return
	}

	if c.intentional.Load() {
		// The consumer disconnected while the dial was in flight; the
		// socket won the race but nobody wants it.
		ch := c.ch
		c.ch = nil
		c.gen++
		ch.Close(transport.ReasonAbortedConnect)
		c.setStatus(StatusDisconnected, "")
		return
	}

	c.attempts = 0
	c.setStatus(StatusConnected, "")
	c.log.Info("event feed connected", "simulation", c.target)
}

func (c *Client) onFrame(gen uint64, frame []byte) {
	if gen != c.gen {
		return
	}

	ev, err := wire.Decode(frame)
	if err != nil {
		// Malformed frames are dropped; the connection carries on.
		c.opts.Metrics.decodeError()
		c.log.Debug("dropping frame", "error", err)
		return
	}

	if ev.Kind == wire.KindPing {
		// Liveness contract with the server: reply immediately, never
		// batch.
		c.sendControl(wire.PongFrame())
		c.opts.Metrics.pingAnswered()
		return
	}

	c.opts.Metrics.eventDecoded(string(ev.Kind))
	if c.opts.Recorder != nil {
		c.opts.Recorder(ev)
	}

	c.batch.push(ev)
}

// flush applies the pending batch as one state transition, notifies
// subscribers, then invalidates stale cache scopes. Consumers refetching
// during invalidation therefore already see the updated derived state.
func (c *Client) flush() {
	batch := c.batch.take()
	if len(batch) == 0 {
		return
	}

	scopes := c.store.applyBatch(batch, c.clk.Now())
	c.opts.Metrics.batchFlushed(len(batch))

	c.bus.publish(Update{Kind: UpdateBatchApplied, Status: c.status, Events: len(batch)})

	for _, scope := range scopes {
		c.opts.Metrics.invalidated(scope.Resource)
		if c.opts.Invalidator != nil {
			c.opts.Invalidator.Invalidate(scope)
		}
	}
}

func (c *Client) onClose(gen uint64, wasClean bool, code int, reason string) {
	if gen != c.gen {
		return
	}

	c.ch = nil
	c.gen++

	if c.intentional.Load() || wasClean {
		c.setStatus(StatusDisconnected, "")
		return
	}

	c.log.Warn("event feed lost", "simulation", c.target, "code", code, "reason", reason)

	if c.attempts >= c.opts.MaxReconnects {
		// Fail-stop: surface a terminal error instead of retrying
		// forever, so the consumer can show a clear give-up state.
		// Recovery requires an explicit Connect.
		c.setStatus(StatusDisconnected, fmt.Sprintf(
			"connection lost after %d reconnect attempts: %s", c.opts.MaxReconnects, reason))
		return
	}

	c.attempts++
	c.opts.Metrics.reconnect()
	c.setStatus(StatusDisconnected, reason)
	c.log.Info("scheduling reconnect", "simulation", c.target,
		"attempt", c.attempts, "max", c.opts.MaxReconnects, "delay", c.opts.ReconnectDelay)

	target := c.target
	c.reconnectTimer = c.clk.AfterFunc(c.opts.ReconnectDelay, func() {
		c.post(func() { c.reconnect(target) })
	})
}

// reconnect re-opens the channel after an unclean close, unless the world
// changed while the delay ran.
func (c *Client) reconnect(target string) {
	if c.intentional.Load() || c.target != target || c.ch != nil {
		return
	}
	c.openChannel()
}

func (c *Client) onError(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	// Errors surface as state, never as panics or throws; the close that
	// follows drives the policy.
	c.lastErr = err.Error()
	c.store.setStatus(c.status, c.target, c.lastErr)
}

func (c *Client) disconnect() {
	c.stopReconnect()
	c.batch.discard()

	if c.ch != nil {
		ch := c.ch
		c.ch = nil
		c.gen++
		ch.Close(transport.ReasonClientDisconnect)
	}

	c.target = ""
	c.attempts = 0
	c.store.reset()
	c.setStatus(StatusDisconnected, "")

	// Keep the intentional flag up long enough for the channel's own
	// close notification to drain, then clear it so it cannot leak into
	// a later legitimate connect.
	c.stopGrace()
	c.graceTimer = c.clk.AfterFunc(disconnectGrace, func() {
		c.post(func() { c.intentional.Store(false) })
	})
}

func (c *Client) sendControl(frame []byte) {
	if c.ch == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := c.ch.Send(ctx, frame); err != nil {
		c.log.Debug("control frame send failed", "error", err)
	}
}

func (c *Client) setStatus(status Status, lastErr string) {
	if c.status == status && c.lastErr == lastErr && c.lastTarget == c.target {
		return
	}

	c.status = status
	c.lastErr = lastErr
	c.lastTarget = c.target
	c.store.setStatus(status, c.target, lastErr)
	c.bus.publish(Update{Kind: UpdateStatusChanged, Status: status, Err: lastErr})
}

func (c *Client) stopReconnect() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) stopGrace() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}
