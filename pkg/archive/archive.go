// Package archive persists decoded feed events to SQLite so a finished or
// interrupted simulation can be replayed through the engine offline. Events
// are appended once per decoded frame and ordered by a sequence column, not
// by timestamps, so replay order always matches arrival order.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/simdeck/simdeck/pkg/wire"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL,
	started_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	kind          TEXT NOT NULL,
	simulation_id TEXT NOT NULL DEFAULT '',
	payload       TEXT NOT NULL,
	recorded_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS events_run_seq ON events(run_id, seq);
`

// Run identifies one recorded subscription session.
type Run struct {
	ID           string
	SimulationID string
	StartedAt    time.Time
}

// Archive is a SQLite-backed event recorder and reader.
type Archive struct {
	db *sql.DB
}

// Open creates or opens the archive database at path. SQLite supports one
// writer at a time, so the pool is pinned to a single connection.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: connect: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// BeginRun registers a new recording session for a simulation.
func (a *Archive) BeginRun(ctx context.Context, simulationID string) (Run, error) {
	run := Run{
		ID:           uuid.NewString(),
		SimulationID: simulationID,
		StartedAt:    time.Now().UTC(),
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO runs (id, simulation_id, started_at) VALUES (?, ?, ?)`,
		run.ID, run.SimulationID, run.StartedAt)
	if err != nil {
		return Run{}, fmt.Errorf("archive: begin run: %w", err)
	}

	return run, nil
}

// Record appends one event to a run.
func (a *Archive) Record(ctx context.Context, runID string, ev wire.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("archive: marshal event: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO events (run_id, kind, simulation_id, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(ev.Kind), ev.SimulationID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive: record event: %w", err)
	}

	return nil
}

// Recorder adapts a run to the engine's event tap. Write failures are
// logged and swallowed: losing an archive row must never affect the live
// feed.
func (a *Archive) Recorder(runID string, log *slog.Logger) func(wire.Event) {
	if log == nil {
		log = slog.Default()
	}

	return func(ev wire.Event) {
		if err := a.Record(context.Background(), runID, ev); err != nil {
			log.Warn("archive write failed", "run", runID, "error", err)
		}
	}
}

// Runs lists recorded runs, most recent first.
func (a *Archive) Runs(ctx context.Context) ([]Run, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, simulation_id, started_at FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.SimulationID, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("archive: scan run: %w", err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Events returns a run's events in arrival order.
func (a *Archive) Events(ctx context.Context, runID string) ([]wire.Event, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("archive: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []wire.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("archive: scan event: %w", err)
		}

		var ev wire.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("archive: unmarshal event: %w", err)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}
