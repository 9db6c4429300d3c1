package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simdeck/simdeck/pkg/live"
)

func TestStore_GetOrFetchesOnce(t *testing.T) {
	var s Store
	scope := live.Scope{SimulationID: "sim-1"}

	fetches := 0
	fetch := func(context.Context) (any, error) {
		fetches++
		return "summary", nil
	}

	v, err := s.GetOr(context.Background(), scope, fetch)
	require.NoError(t, err)
	assert.Equal(t, "summary", v)

	v, err = s.GetOr(context.Background(), scope, fetch)
	require.NoError(t, err)
	assert.Equal(t, "summary", v)
	assert.Equal(t, 1, fetches)
}

func TestStore_GetOrPropagatesFetchError(t *testing.T) {
	var s Store
	boom := errors.New("origin down")

	_, err := s.GetOr(context.Background(), live.Scope{SimulationID: "x"},
		func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len(), "errors are not cached")
}

func TestStore_InvalidateScope(t *testing.T) {
	var s Store
	messages := live.Scope{SimulationID: "sim-1", Resource: live.ResourceMessages}
	summary := live.Scope{SimulationID: "sim-1"}

	s.Set(summary, "summary")
	s.Set(messages, "page-1")

	s.Invalidate(messages)
	_, ok := s.Get(messages)
	assert.False(t, ok)
	_, ok = s.Get(summary)
	assert.True(t, ok, "sub-resource invalidation leaves the summary alone")
}

func TestStore_SummaryInvalidationCascades(t *testing.T) {
	var s Store
	s.Set(live.Scope{SimulationID: "sim-1"}, "summary")
	s.Set(live.Scope{SimulationID: "sim-1", Resource: live.ResourceMessages}, "page-1")
	s.Set(live.Scope{SimulationID: "sim-2"}, "other")

	s.Invalidate(live.Scope{SimulationID: "sim-1"})

	assert.Equal(t, 1, s.Len())
	_, ok := s.Get(live.Scope{SimulationID: "sim-2"})
	assert.True(t, ok, "other simulations are untouched")
}
