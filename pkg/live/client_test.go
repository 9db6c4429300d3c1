package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simdeck/simdeck/pkg/clock"
	"github.com/simdeck/simdeck/pkg/transport"
	"github.com/simdeck/simdeck/pkg/wire"
)

// drain blocks until the run loop has processed everything queued before it.
func (c *Client) drain() {
	done := make(chan struct{})
	c.post(func() { close(done) })
	<-done
}

// fakeChannel is a scriptable transport channel. Server-side behaviour is
// driven by the test through the callbacks.
type fakeChannel struct {
	target string
	cb     transport.Callbacks

	mu     sync.Mutex
	sent   [][]byte
	reason string
}

func (f *fakeChannel) Send(_ context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), frame...))
	return nil
}

func (f *fakeChannel) Close(reason string) {
	f.mu.Lock()
	if f.reason != "" {
		f.mu.Unlock()
		return
	}
	f.reason = reason
	f.mu.Unlock()

	if f.cb.OnClose != nil {
		f.cb.OnClose(true, 1000, reason)
	}
}

func (f *fakeChannel) closedWith() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

func (f *fakeChannel) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

// serverDrop simulates an unclean, server-side connection loss.
func (f *fakeChannel) serverDrop() {
	if f.cb.OnError != nil {
		f.cb.OnError(errors.New("connection reset"))
	}
	f.cb.OnClose(false, -1, "connection reset")
}

type fakeFactory struct {
	mu       sync.Mutex
	autoOpen bool
	chans    []*fakeChannel
}

func (f *fakeFactory) Open(target string, cb transport.Callbacks) transport.Channel {
	ch := &fakeChannel{target: target, cb: cb}

	f.mu.Lock()
	f.chans = append(f.chans, ch)
	f.mu.Unlock()

	if f.autoOpen {
		cb.OnOpen()
	}

	return ch
}

func (f *fakeFactory) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chans)
}

func (f *fakeFactory) last() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chans[len(f.chans)-1]
}

// scopeRecorder records invalidations, optionally observing the store at
// invalidation time.
type scopeRecorder struct {
	mu      sync.Mutex
	scopes  []Scope
	observe func()
}

func (r *scopeRecorder) Invalidate(scope Scope) {
	r.mu.Lock()
	r.scopes = append(r.scopes, scope)
	r.mu.Unlock()

	if r.observe != nil {
		r.observe()
	}
}

func (r *scopeRecorder) all() []Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Scope(nil), r.scopes...)
}

func newTestClient(t *testing.T, f *fakeFactory, clk *clock.Fake, inv Invalidator) *Client {
	t.Helper()

	c, err := New(Options{
		Factory:     f,
		Invalidator: inv,
		Clock:       clk,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestClient_ConnectLifecycle(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	assert.Equal(t, StatusDisconnected, c.Status())

	c.Connect("sim-1")
	c.drain()

	assert.True(t, c.IsConnected())
	assert.Equal(t, "sim-1", c.Store().SimulationID())
	assert.Empty(t, c.LastError())
}

func TestClient_BatchAtomicity(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()

	sub := c.Updates().Subscribe(64)
	defer c.Updates().Unsubscribe(sub)

	ch := f.last()
	for i := range 10 {
		ch.cb.OnMessage(fmt.Appendf(nil,
			`{"type":"message.created","message_id":"m%d","sender_id":"a"}`, i))
	}
	c.drain()

	// Nothing observable until the window closes.
	assert.Empty(t, c.LiveMessages())

	clk.Advance(DefaultBatchWindow)
	c.drain()

	assert.Len(t, c.LiveMessages(), 10)

	batches := 0
	for done := false; !done; {
		select {
		case u := <-sub.C:
			if u.Kind == UpdateBatchApplied {
				batches++
				assert.Equal(t, 10, u.Events)
			}
		default:
			done = true
		}
	}
	assert.Equal(t, 1, batches, "exactly one state transition for the whole burst")
}

func TestClient_PingAnsweredWithPong(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()

	ch := f.last()
	ch.cb.OnMessage([]byte(`{"type":"ping"}`))
	c.drain()

	frames := ch.sentFrames()
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"type":"pong"}`, string(frames[0]))

	// Pings never enter the batching path or the diagnostic history.
	clk.Advance(time.Second)
	c.drain()
	assert.Empty(t, c.EventHistory())
}

func TestClient_SupersededConnect(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("A")
	c.drain()
	chA := f.last()

	c.Connect("B")
	c.drain()

	assert.Equal(t, 2, f.opens(), "exactly one new channel for B")
	assert.Equal(t, transport.ReasonSuperseded, chA.closedWith())
	assert.Equal(t, "B", c.Store().SimulationID())
	assert.True(t, c.IsConnected())

	// A late frame from the superseded channel must never reach the
	// derived state.
	chA.cb.OnMessage([]byte(`{"type":"message.created","message_id":"stale","sender_id":"a"}`))
	c.drain()
	clk.Advance(DefaultBatchWindow)
	c.drain()

	assert.Empty(t, c.LiveMessages())
}

func TestClient_ConnectSameSimulationIsNoop(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("A")
	c.drain()
	c.Connect("A")
	c.drain()

	assert.Equal(t, 1, f.opens())
}

func TestClient_IdempotentDisconnect(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()

	c.Disconnect()
	c.drain()
	c.Disconnect()
	c.drain()

	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Empty(t, c.Store().SimulationID())
	assert.Equal(t, transport.ReasonClientDisconnect, f.last().closedWith())

	// No reconnect may ever fire after an intentional disconnect.
	clk.Advance(time.Minute)
	c.drain()
	assert.Equal(t, 1, f.opens())
}

func TestClient_DisconnectDiscardsPendingBatch(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()

	ch := f.last()
	ch.cb.OnMessage([]byte(`{"type":"message.created","message_id":"m1","sender_id":"a"}`))
	ch.cb.OnMessage([]byte(`{"type":"message.created","message_id":"m2","sender_id":"a"}`))

	c.Disconnect()
	c.drain()

	clk.Advance(time.Second)
	c.drain()

	assert.Empty(t, c.LiveMessages(), "mid-window disconnect drops the pending buffer")
	assert.Empty(t, c.EventHistory())
}

func TestClient_RetryCeiling(t *testing.T) {
	f := &fakeFactory{} // Dials never complete; every close is unclean.
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()

	// Six consecutive unclean closes: five scheduled reconnects, then a
	// terminal error.
	for i := 0; i < 6; i++ {
		f.last().cb.OnClose(false, -1, "network failure")
		c.drain()

		if i < 5 {
			clk.Advance(DefaultReconnectDelay)
			c.drain()
		}
	}

	assert.Equal(t, 6, f.opens(), "initial open plus five reconnect attempts")
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Contains(t, c.LastError(), "after 5 reconnect attempts")

	// Terminal means terminal: no further attempts without an explicit
	// Connect.
	clk.Advance(time.Minute)
	c.drain()
	assert.Equal(t, 6, f.opens())

	// An explicit Connect recovers from the terminal state.
	c.Connect("sim-1")
	c.drain()
	assert.Equal(t, 7, f.opens())
	assert.Equal(t, StatusConnecting, c.Status())
}

func TestClient_ReconnectRestoresConnection(t *testing.T) {
	f := &fakeFactory{}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()
	f.last().cb.OnOpen()
	c.drain()
	require.True(t, c.IsConnected())

	f.last().serverDrop()
	c.drain()
	assert.Equal(t, StatusDisconnected, c.Status())

	clk.Advance(DefaultReconnectDelay)
	c.drain()
	require.Equal(t, 2, f.opens())

	f.last().cb.OnOpen()
	c.drain()
	assert.True(t, c.IsConnected())
	assert.Empty(t, c.LastError(), "successful reconnect clears the error")
}

func TestClient_CleanCloseDoesNotReconnect(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()

	f.last().cb.OnClose(true, 1000, "server shutdown")
	c.drain()

	assert.Equal(t, StatusDisconnected, c.Status())
	clk.Advance(time.Minute)
	c.drain()
	assert.Equal(t, 1, f.opens())
}

func TestClient_DisconnectDuringConnectRace(t *testing.T) {
	f := &fakeFactory{} // Dial stays in flight until the test opens it.
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()
	ch := f.last()

	// Hold the run loop so the open outcome and the disconnect queue up
	// in the order the race produces: socket opens first, consumer has
	// already asked to stop.
	gate := make(chan struct{})
	c.post(func() { <-gate })

	ch.cb.OnOpen()
	c.Disconnect()
	close(gate)
	c.drain()

	assert.Equal(t, transport.ReasonAbortedConnect, ch.closedWith())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Empty(t, c.Store().SimulationID())
}

func TestClient_DecodeErrorsAreNonFatal(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()

	ch := f.last()
	ch.cb.OnMessage([]byte(`{not json`))
	ch.cb.OnMessage([]byte(`{"type":"simulation.exploded"}`))
	ch.cb.OnMessage([]byte(`{"type":"message.created","message_id":"m1","sender_id":"a"}`))
	c.drain() // Frames must reach the loop before the window can elapse.

	clk.Advance(DefaultBatchWindow)
	c.drain()

	require.Len(t, c.LiveMessages(), 1)
	assert.Equal(t, "m1", c.LiveMessages()[0].ID)
	assert.True(t, c.IsConnected())
}

func TestClient_InvalidationRunsAfterStoreUpdate(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))

	var stepAtInvalidation Step
	rec := &scopeRecorder{}

	c := newTestClient(t, f, clk, rec)
	rec.observe = func() { stepAtInvalidation = c.CurrentStep() }

	c.Connect("sim-1")
	c.drain()

	f.last().cb.OnMessage([]byte(`{"type":"step.completed","simulation_id":"sim-1","step":3,"total_steps":8}`))
	c.drain()
	clk.Advance(DefaultBatchWindow)
	c.drain()

	scopes := rec.all()
	require.Len(t, scopes, 1)
	assert.Equal(t, "simulations/sim-1/messages", scopes[0].Key())
	assert.Equal(t, Step{Current: 3, Total: 8}, stepAtInvalidation,
		"consumers refetching during invalidation see updated derived state")
}

func TestClient_GraceFlagDoesNotLeakIntoNextConnect(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("A")
	c.drain()
	c.Disconnect()
	c.drain()

	clk.Advance(time.Second)
	c.drain()

	c.Connect("B")
	c.drain()

	assert.True(t, c.IsConnected())
	assert.Equal(t, "B", c.Store().SimulationID())
}

func TestClient_RecorderSeesEveryDecodedEvent(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))

	var mu sync.Mutex
	var recorded []wire.Kind

	c, err := New(Options{
		Factory: f,
		Clock:   clk,
		Recorder: func(ev wire.Event) {
			mu.Lock()
			recorded = append(recorded, ev.Kind)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer c.Close()

	c.Connect("sim-1")
	c.drain()

	ch := f.last()
	ch.cb.OnMessage([]byte(`{"type":"simulation.started"}`))
	ch.cb.OnMessage([]byte(`{"type":"ping"}`))
	ch.cb.OnMessage([]byte(`{"type":"agent.thinking","agent_id":"a"}`))
	c.drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []wire.Kind{wire.KindSimulationStarted, wire.KindAgentThinking}, recorded,
		"pings are a liveness concern, not data")
}

func TestClient_Inject(t *testing.T) {
	f := &fakeFactory{autoOpen: true}
	clk := clock.NewFake(time.Unix(0, 0))
	c := newTestClient(t, f, clk, nil)

	c.Connect("sim-1")
	c.drain()

	c.Inject([]byte(`{"type":"message.created","message_id":"inj","sender_id":"a"}`))
	c.drain()
	clk.Advance(DefaultBatchWindow)
	c.drain()

	require.Len(t, c.LiveMessages(), 1)
	assert.Equal(t, "inj", c.LiveMessages()[0].ID)
}
