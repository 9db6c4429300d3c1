package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simdeck/simdeck/pkg/wire"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()

	a, err := Open(filepath.Join(t.TempDir(), "simdeck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func TestRecordAndReadBack(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	run, err := a.BeginRun(ctx, "sim-1")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "sim-1", run.SimulationID)

	evs := []wire.Event{
		{Kind: wire.KindSimulationStarted, SimulationID: "sim-1", Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
		{Kind: wire.KindAgentThinking, SimulationID: "sim-1", AgentID: "a1", AgentName: "Ada"},
		{Kind: wire.KindMessageCreated, SimulationID: "sim-1", MessageID: "m1", SenderID: "a1", Content: "hello"},
	}
	for _, ev := range evs {
		require.NoError(t, a.Record(ctx, run.ID, ev))
	}

	got, err := a.Events(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, evs, got)
}

func TestEventsKeepArrivalOrder(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	run, err := a.BeginRun(ctx, "sim-1")
	require.NoError(t, err)

	// Deliberately record with timestamps out of order; readback must follow
	// insertion order, not timestamp order.
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, a.Record(ctx, run.ID, wire.Event{Kind: wire.KindStepStarted, Step: 2, Timestamp: base.Add(time.Minute)}))
	require.NoError(t, a.Record(ctx, run.ID, wire.Event{Kind: wire.KindStepStarted, Step: 1, Timestamp: base}))

	got, err := a.Events(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Step)
	assert.Equal(t, 1, got[1].Step)
}

func TestRunsIsolatedAndListed(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	r1, err := a.BeginRun(ctx, "sim-1")
	require.NoError(t, err)
	r2, err := a.BeginRun(ctx, "sim-2")
	require.NoError(t, err)

	require.NoError(t, a.Record(ctx, r1.ID, wire.Event{Kind: wire.KindPing}))
	require.NoError(t, a.Record(ctx, r2.ID, wire.Event{Kind: wire.KindPong}))

	got1, err := a.Events(ctx, r1.ID)
	require.NoError(t, err)
	require.Len(t, got1, 1)
	assert.Equal(t, wire.KindPing, got1[0].Kind)

	runs, err := a.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	ids := []string{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, r1.ID)
	assert.Contains(t, ids, r2.ID)
}

func TestRecorderSwallowsErrors(t *testing.T) {
	a := openTestArchive(t)

	// A recorder bound to a run that violates the foreign key must log and
	// carry on, not panic.
	rec := a.Recorder("no-such-run", nil)
	assert.NotPanics(t, func() {
		rec(wire.Event{Kind: wire.KindPing})
	})

	run, err := a.BeginRun(context.Background(), "sim-1")
	require.NoError(t, err)

	rec = a.Recorder(run.ID, nil)
	rec(wire.Event{Kind: wire.KindSubscribed, SimulationID: "sim-1"})

	got, err := a.Events(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, wire.KindSubscribed, got[0].Kind)
}
