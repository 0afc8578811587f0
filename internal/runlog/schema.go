package runlog

// Schemas are compatible with both SQLite and PostgreSQL. Timestamps are
// stored as RFC 3339 text so both drivers round-trip them identically.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS inference_runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    edges_created INTEGER NOT NULL,
    failed_passes INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inference_runs_started ON inference_runs(started_at);
`

const schemaPasses = `
CREATE TABLE IF NOT EXISTS inference_passes (
    run_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    created INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, position)
);
`

// AllSchemas returns the statements applied on startup, in order.
func AllSchemas() []string {
	return []string{schemaRuns, schemaPasses}
}
