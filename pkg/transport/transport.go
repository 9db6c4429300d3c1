// Package transport owns the physical streaming connection to a simulation
// server. A Factory opens one Channel per subscription target; the Channel
// reports its lifecycle through Callbacks and never fails synchronously on
// network errors, so the caller's state machine sees every outcome the same
// way: as a notification.
package transport

import (
	"context"
	"errors"
)

// Close reasons attached to locally initiated closures. The reconnection
// policy uses them to tell an intentional close apart from a network failure.
const (
	// ReasonSuperseded marks a channel replaced by a newer open for a
	// different target.
	ReasonSuperseded = "superseded"
	// ReasonClientDisconnect marks an explicit disconnect by the consumer.
	ReasonClientDisconnect = "client disconnect"
	// ReasonAbortedConnect marks a channel whose consumer disconnected
	// while the dial was still in flight.
	ReasonAbortedConnect = "disconnected during connection"
)

// ErrNotOpen is returned by Send before the channel has finished opening or
// after it has closed.
var ErrNotOpen = errors.New("transport: channel not open")

// Callbacks receive channel lifecycle notifications. All callbacks are
// invoked from the channel's own goroutine; OnClose fires exactly once, after
// which no further callbacks are delivered.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(frame []byte)
	OnClose   func(wasClean bool, code int, reason string)
	OnError   func(err error)
}

// Channel is one open (or opening) streaming connection.
type Channel interface {
	// Send writes one control frame. It fails with ErrNotOpen if the
	// channel is not currently open.
	Send(ctx context.Context, frame []byte) error
	// Close requests closure with the given reason. It is idempotent and
	// returns immediately; the eventual OnClose callback carries the
	// reason.
	Close(reason string)
}

// Factory opens channels to named targets. Open returns immediately; dial
// failures surface via OnError followed by OnClose.
type Factory interface {
	Open(target string, cb Callbacks) Channel
}
