package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simdeck/simdeck/pkg/wire"
)

func TestRebuildEmpty(t *testing.T) {
	s := Rebuild(nil, 0, nil)
	require.NotNil(t, s)
	assert.False(t, s.Running())
	assert.Empty(t, s.LiveMessages())
}

func TestRebuildDerivesSameStateAsLiveFold(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	events := []wire.Event{
		{Kind: wire.KindSimulationStarted, SimulationID: "sim-1", Timestamp: base},
		{Kind: wire.KindStepStarted, SimulationID: "sim-1", Step: 1, TotalSteps: 3, Timestamp: base.Add(10 * time.Millisecond)},
		{Kind: wire.KindAgentThinking, SimulationID: "sim-1", AgentID: "a1", AgentName: "Ada", Timestamp: base.Add(20 * time.Millisecond)},
		{Kind: wire.KindMessageCreated, SimulationID: "sim-1", MessageID: "m1", SenderID: "a1", Content: "hi", Timestamp: base.Add(2 * time.Second)},
		{Kind: wire.KindSimulationCompleted, SimulationID: "sim-1", Timestamp: base.Add(3 * time.Second)},
	}

	s := Rebuild(events, DefaultBatchWindow, nil)

	assert.False(t, s.Running())
	assert.Equal(t, Step{Current: 1, Total: 3}, s.CurrentStep())

	msgs := s.LiveMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	agents := s.AgentStates()
	require.Contains(t, agents, "a1")
	assert.Equal(t, AgentIdle, agents["a1"].Status)
	assert.Equal(t, 1, agents["a1"].MessageCount)

	assert.Len(t, s.EventHistory(), len(events))
}

func TestRebuildBatchesByTimestampWindow(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	events := []wire.Event{
		{Kind: wire.KindSimulationStarted, SimulationID: "sim-1", Timestamp: base},
		{Kind: wire.KindStepStarted, SimulationID: "sim-1", Step: 1, Timestamp: base.Add(10 * time.Millisecond)},
		{Kind: wire.KindStepCompleted, SimulationID: "sim-1", Step: 1, Timestamp: base.Add(time.Second)},
	}

	rec := &scopeRecorder{}
	Rebuild(events, 50*time.Millisecond, rec)

	// Two batches: lifecycle+step.started within the window, then the late
	// step.completed on its own. The first invalidates the summary, the
	// second the message list.
	assert.Equal(t, []Scope{
		{SimulationID: "sim-1"},
		{SimulationID: "sim-1", Resource: ResourceMessages},
	}, rec.scopes)
}

func TestRebuildEventsWithoutTimestampsShareOneBatch(t *testing.T) {
	events := []wire.Event{
		{Kind: wire.KindSimulationStarted, SimulationID: "sim-1"},
		{Kind: wire.KindSimulationPaused, SimulationID: "sim-1"},
	}

	rec := &scopeRecorder{}
	s := Rebuild(events, 50*time.Millisecond, rec)

	assert.False(t, s.Running())
	// One batch, so the summary scope appears once.
	assert.Equal(t, []Scope{{SimulationID: "sim-1"}}, rec.scopes)
}
