// Package live is the realtime synchronization engine between a simulation
// server's event feed and the dashboard's read models. A Client owns at most
// one transport channel at a time, decodes the feed into typed events,
// coalesces bursts into batches, folds each batch into derived state as a
// single transition, and tells the externally owned query cache which scopes
// to refetch.
//
// Everything the engine does runs on one run-loop goroutine: transport
// callbacks, timer callbacks, and the Connect/Disconnect entry points all
// post actions into the loop, so the derived state has exactly one writer
// and no ordering surprises across a reconnect race.
package live
