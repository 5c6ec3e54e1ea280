package history

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    num INTEGER NOT NULL,
    status TEXT NOT NULL,
    triggered_by TEXT,
    services TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    duration_secs REAL NOT NULL DEFAULT 0,
    retries INTEGER NOT NULL DEFAULT 0,
    mttr_secs REAL NOT NULL DEFAULT 0,
    record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS propagation (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    service TEXT NOT NULL,
    push_to_healthy_secs REAL NOT NULL,
    status TEXT
);

CREATE INDEX IF NOT EXISTS idx_propagation_run_id ON propagation(run_id);
CREATE INDEX IF NOT EXISTS idx_propagation_service ON propagation(service);
`
