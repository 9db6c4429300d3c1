package live

import (
	"time"

	"github.com/simdeck/simdeck/pkg/wire"
)

// applyBatch folds one batch of events into the store as a single state
// transition and returns the cache scopes the batch requires refetched.
//
// The fold is left to right in arrival order, so fields written by multiple
// events in one batch end up last-write-wins. Partially formed events are
// folded with zero-value defaults, never rejected; a reducer panic over a
// missing field would abort the whole batch and is the one thing this
// function must not do.
func (s *Store) applyBatch(batch []wire.Event, now time.Time) []Scope {
	if len(batch) == 0 {
		return nil
	}

	inv := make(invalidationSet)

	s.mu.Lock()
	for _, ev := range batch {
		s.foldLocked(ev, now, inv)
	}
	s.mu.Unlock()

	return inv.scopes()
}

func (s *Store) foldLocked(ev wire.Event, now time.Time, inv invalidationSet) {
	s.history.append(ev)

	simID := ev.SimulationID
	if simID == "" {
		simID = s.simulationID
	}

	switch {
	case ev.Kind.IsLifecycle():
		s.running = ev.Kind.StartsRun()
		// Lifecycle transitions are the only events that stale the
		// simulation summary query.
		inv.add(Scope{SimulationID: simID})

	case ev.Kind == wire.KindStepStarted:
		s.step = Step{Current: ev.Step, Total: ev.TotalSteps}

	case ev.Kind == wire.KindStepCompleted:
		s.step = Step{Current: ev.Step, Total: ev.TotalSteps}
		// A completed step implies newly queryable server-side rows.
		inv.add(Scope{SimulationID: simID, Resource: ResourceMessages})

	case ev.Kind == wire.KindAgentThinking:
		s.upsertAgentLocked(ev, AgentThinking, eventTime(ev, now))

	case ev.Kind == wire.KindAgentResponded:
		s.upsertAgentLocked(ev, AgentResponded, eventTime(ev, now))

	case ev.Kind == wire.KindMessageCreated:
		s.messages.append(LiveMessage{
			ID:           ev.MessageID,
			SimulationID: simID,
			SenderID:     ev.SenderID,
			ReceiverID:   ev.ReceiverID,
			Content:      ev.Content,
			ReceivedAt:   eventTime(ev, now),
		})

		// A created message is evidence the sender finished thinking,
		// even when the explicit agent.responded event never arrived.
		if ev.SenderID != "" {
			st := s.agents[ev.SenderID]
			st.ID = ev.SenderID
			st.Status = AgentIdle
			st.LastActivity = eventTime(ev, now)
			st.MessageCount++
			s.agents[ev.SenderID] = st
		}

	default:
		// connected/disconnected/subscribed/pong/simulation.created/
		// memory.created: diagnostic history only.
	}
}

// upsertAgentLocked merges status and activity time into the agent's row,
// creating it if absent and preserving its message count.
func (s *Store) upsertAgentLocked(ev wire.Event, status AgentStatus, at time.Time) {
	if ev.AgentID == "" {
		return
	}

	st := s.agents[ev.AgentID]
	st.ID = ev.AgentID
	if ev.AgentName != "" {
		st.Name = ev.AgentName
	}
	st.Status = status
	st.LastActivity = at
	s.agents[ev.AgentID] = st
}

// eventTime prefers the server timestamp and falls back to the local clock.
func eventTime(ev wire.Event, now time.Time) time.Time {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp
	}
	return now
}
