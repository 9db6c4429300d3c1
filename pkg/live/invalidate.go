package live

import "sort"

// Resource names for cache scopes. The summary scope has no resource.
const ResourceMessages = "messages"

// Scope identifies one externally owned cache entry: a simulation's summary
// query, or one of its sub-resources.
type Scope struct {
	SimulationID string
	Resource     string
}

// Key returns the canonical cache key for the scope.
func (s Scope) Key() string {
	if s.Resource == "" {
		return "simulations/" + s.SimulationID
	}
	return "simulations/" + s.SimulationID + "/" + s.Resource
}

// Invalidator is the one operation the engine needs from the externally
// owned query cache. The engine never reads from the cache.
type Invalidator interface {
	Invalidate(scope Scope)
}

// InvalidateFunc adapts a function to the Invalidator interface.
type InvalidateFunc func(scope Scope)

func (f InvalidateFunc) Invalidate(scope Scope) { f(scope) }

// invalidationSet accumulates the scopes one batch requires refetched.
// Produced once per flushed batch, not per event.
type invalidationSet map[Scope]struct{}

func (s invalidationSet) add(scope Scope) { s[scope] = struct{}{} }

// scopes returns the set in a stable order.
func (s invalidationSet) scopes() []Scope {
	out := make([]Scope, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
