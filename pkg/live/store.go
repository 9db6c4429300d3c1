package live

import (
	"sync"
	"time"

	"github.com/simdeck/simdeck/pkg/wire"
)

// Status is the connection status of the engine.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// AgentStatus is an agent's current activity as derived from the feed.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentThinking  AgentStatus = "thinking"
	AgentResponded AgentStatus = "responded"
)

// LiveMessage is one entry in the bounded live message log.
type LiveMessage struct {
	ID           string
	SimulationID string
	SenderID     string
	ReceiverID   string
	Content      string
	ReceivedAt   time.Time
}

// AgentState is the derived per-agent row: current activity, when the agent
// was last seen doing anything, and how many messages it has sent.
type AgentState struct {
	ID           string
	Name         string
	Status       AgentStatus
	LastActivity time.Time
	MessageCount int
}

// Step is the simulation's step progress.
type Step struct {
	Current int
	Total   int
}

// Snapshot is a consistent copy of the whole derived state.
type Snapshot struct {
	Status       Status
	LastError    string
	SimulationID string
	Running      bool
	Step         Step
	Messages     []LiveMessage
	Agents       map[string]AgentState
	History      []wire.Event
}

// Store holds the engine's derived state. It is written only by the client's
// run loop (connection status, batch application); selectors may be called
// from any goroutine and return copies.
type Store struct {
	mu sync.RWMutex

	status       Status
	lastErr      string
	simulationID string

	running  bool
	step     Step
	messages *ring[LiveMessage]
	agents   map[string]AgentState
	history  *ring[wire.Event]
}

// NewStore creates a Store with the given log capacities.
func NewStore(messageCap, historyCap int) *Store {
	return &Store{
		status:   StatusDisconnected,
		messages: newRing[LiveMessage](messageCap),
		agents:   make(map[string]AgentState),
		history:  newRing[wire.Event](historyCap),
	}
}

// Status returns the connection status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsConnected reports whether the engine currently holds an open channel.
func (s *Store) IsConnected() bool { return s.Status() == StatusConnected }

// LastError returns the most recent transport error, or "".
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// SimulationID returns the currently subscribed simulation id, or "".
func (s *Store) SimulationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.simulationID
}

// Running reports whether the simulation is currently running (as opposed to
// paused, completed, or errored).
func (s *Store) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// CurrentStep returns the step progress.
func (s *Store) CurrentStep() Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// LiveMessages returns the bounded message log, oldest first.
func (s *Store) LiveMessages() []LiveMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages.snapshot()
}

// AgentStates returns a copy of the per-agent table.
func (s *Store) AgentStates() map[string]AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]AgentState, len(s.agents))
	for id, st := range s.agents {
		out[id] = st
	}
	return out
}

// EventHistory returns the bounded diagnostic log of decoded events, oldest
// first.
func (s *Store) EventHistory() []wire.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.snapshot()
}

// Snapshot returns a consistent copy of everything at once.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make(map[string]AgentState, len(s.agents))
	for id, st := range s.agents {
		agents[id] = st
	}

	return Snapshot{
		Status:       s.status,
		LastError:    s.lastErr,
		SimulationID: s.simulationID,
		Running:      s.running,
		Step:         s.step,
		Messages:     s.messages.snapshot(),
		Agents:       agents,
		History:      s.history.snapshot(),
	}
}

// setStatus records a connection status transition.
func (s *Store) setStatus(status Status, simulationID, lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	s.simulationID = simulationID
	s.lastErr = lastErr
}

// reset clears all feed-derived state. Connection status is left to
// setStatus.
func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.step = Step{}
	s.messages.reset()
	s.agents = make(map[string]AgentState)
	s.history.reset()
}
