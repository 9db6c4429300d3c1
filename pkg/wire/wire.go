// Package wire defines the event frames pushed by a simulation server and
// the decoder that turns raw frames into typed events. The set of kinds is
// closed; frames with an unrecognized type decode to KindUnknown together
// with a non-fatal *DecodeError so the connection can keep going.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the type of a server-pushed event.
type Kind string

const (
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
	KindSubscribed   Kind = "subscribed"
	KindPing         Kind = "ping"
	KindPong         Kind = "pong"

	KindSimulationCreated   Kind = "simulation.created"
	KindSimulationStarted   Kind = "simulation.started"
	KindSimulationPaused    Kind = "simulation.paused"
	KindSimulationResumed   Kind = "simulation.resumed"
	KindSimulationCompleted Kind = "simulation.completed"
	KindSimulationError     Kind = "simulation.error"

	KindStepStarted   Kind = "step.started"
	KindStepCompleted Kind = "step.completed"

	KindAgentThinking  Kind = "agent.thinking"
	KindAgentResponded Kind = "agent.responded"

	KindMessageCreated Kind = "message.created"
	KindMemoryCreated  Kind = "memory.created"

	// KindUnknown is the fallback for frames whose type tag is not in the
	// closed set above.
	KindUnknown Kind = "unknown"
)

// knownKinds is the closed set of kinds a server may push.
var knownKinds = map[Kind]struct{}{
	KindConnected: {}, KindDisconnected: {}, KindSubscribed: {},
	KindPing: {}, KindPong: {},
	KindSimulationCreated: {}, KindSimulationStarted: {}, KindSimulationPaused: {},
	KindSimulationResumed: {}, KindSimulationCompleted: {}, KindSimulationError: {},
	KindStepStarted: {}, KindStepCompleted: {},
	KindAgentThinking: {}, KindAgentResponded: {},
	KindMessageCreated: {}, KindMemoryCreated: {},
}

// ParseKind returns the Kind for a wire type tag and whether it is part of
// the closed set.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	_, ok := knownKinds[k]
	return k, ok
}

// IsLifecycle reports whether the kind is a simulation lifecycle transition
// that flips the running flag (started, paused, resumed, completed, error).
// simulation.created announces a new simulation but does not affect a running
// one, so it is excluded.
func (k Kind) IsLifecycle() bool {
	switch k {
	case KindSimulationStarted, KindSimulationPaused, KindSimulationResumed,
		KindSimulationCompleted, KindSimulationError:
		return true
	default:
		return false
	}
}

// StartsRun reports whether a lifecycle kind leaves the simulation running.
func (k Kind) StartsRun() bool {
	return k == KindSimulationStarted || k == KindSimulationResumed
}

// Event is one immutable fact pushed by the server. Fields not applicable to
// a kind are zero; the decoder never fails on a missing optional field.
type Event struct {
	Kind         Kind      `json:"type"`
	SimulationID string    `json:"simulation_id,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
	AgentName    string    `json:"agent_name,omitempty"`
	Step         int       `json:"step,omitempty"`
	TotalSteps   int       `json:"total_steps,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	SenderID     string    `json:"sender_id,omitempty"`
	ReceiverID   string    `json:"receiver_id,omitempty"`
	Content      string    `json:"content,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitzero"`
}

// ErrUnknownKind reports a frame whose type tag is outside the closed set.
var ErrUnknownKind = errors.New("wire: unknown event kind")

// DecodeError is a non-fatal per-frame failure. The frame is dropped; the
// connection and subsequent frames are unaffected.
type DecodeError struct {
	Frame []byte
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: decode frame: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Decode parses one raw frame into an Event. Malformed JSON, a missing type
// tag, or a type tag outside the closed set yield a *DecodeError. On an
// unknown tag the returned event still carries KindUnknown and whatever
// fields parsed, so callers that tolerate unknown kinds can keep the frame.
func Decode(frame []byte) (Event, error) {
	var raw struct {
		Type string `json:"type"`
		Event
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Event{}, &DecodeError{Frame: frame, Cause: err}
	}

	if raw.Type == "" {
		return Event{}, &DecodeError{Frame: frame, Cause: errors.New("missing type tag")}
	}

	ev := raw.Event
	kind, ok := ParseKind(raw.Type)
	if !ok {
		ev.Kind = KindUnknown
		return ev, &DecodeError{Frame: frame, Cause: fmt.Errorf("%w %q", ErrUnknownKind, raw.Type)}
	}

	ev.Kind = kind
	return ev, nil
}

// PongFrame is the control frame sent in direct reply to a received ping.
func PongFrame() []byte {
	return []byte(`{"type":"pong"}`)
}
