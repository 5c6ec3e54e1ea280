// Package history persists finalized runs to SQLite so statistics
// survive dashboard restarts. Live runs never touch the database; the
// controller saves a run exactly once, at finalize.
package history

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// Store provides SQLite-backed run persistence.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "running migrations")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists one finalized run. The full record is stored as
// JSON next to the queryable columns; saving the same run twice
// overwrites the previous row.
func (s *Store) SaveRun(r *pipeline.Run) error {
	if !r.Status.Terminal() {
		return errors.Errorf("run %s is not finalized (%s)", r.ID, r.Status)
	}
	record, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal run record")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (id, num, status, triggered_by, services, started_at, duration_secs, retries, mttr_secs, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			duration_secs = excluded.duration_secs,
			retries = excluded.retries,
			mttr_secs = excluded.mttr_secs,
			record = excluded.record
	`,
		r.ID,
		r.Num,
		string(r.Status),
		r.TriggeredBy,
		strings.Join(r.Services, ","),
		r.StartedAt,
		r.Duration.Seconds(),
		r.Retries,
		r.MTTRSecs,
		string(record),
	)
	if err != nil {
		return errors.Wrap(err, "upsert run")
	}

	if _, err := tx.Exec(`DELETE FROM propagation WHERE run_id = ?`, r.ID); err != nil {
		return errors.Wrap(err, "clear propagation")
	}
	for _, p := range r.PropagationStats {
		_, err := tx.Exec(`
			INSERT INTO propagation (run_id, service, push_to_healthy_secs, status)
			VALUES (?, ?, ?, ?)
		`, r.ID, p.Service, p.PushToHealthySecs, p.Status)
		if err != nil {
			return errors.Wrap(err, "insert propagation")
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// GetRun loads one persisted run record by id.
func (s *Store) GetRun(id string) (*pipeline.Run, error) {
	var record string
	err := s.db.QueryRow(`SELECT record FROM runs WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("no persisted run %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query run")
	}
	var r pipeline.Run
	if err := json.Unmarshal([]byte(record), &r); err != nil {
		return nil, errors.Wrap(err, "unmarshal run record")
	}
	return &r, nil
}

// ListOptions filters ListRuns.
type ListOptions struct {
	Status pipeline.RunStatus
	Since  time.Time
	Limit  int
}

// ListRuns returns persisted run summaries, most recent first.
func (s *Store) ListRuns(opts ListOptions) ([]pipeline.RunSummary, error) {
	query := `SELECT id, num, status, triggered_by, started_at, duration_secs FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if !opts.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, opts.Since)
	}
	query += " ORDER BY num DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []pipeline.RunSummary
	for rows.Next() {
		var sum pipeline.RunSummary
		var status string
		var durSecs float64
		var triggeredBy sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Num, &status, &triggeredBy, &sum.StartedAt, &durSecs); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		sum.Status = pipeline.RunStatus(status)
		sum.Duration = time.Duration(durSecs * float64(time.Second))
		if triggeredBy.Valid {
			sum.TriggeredBy = triggeredBy.String
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// ServiceLatency aggregates a service's push-to-healthy latency across
// persisted runs. Negative samples (never healthy) are excluded.
type ServiceLatency struct {
	Service string
	Samples int
	AvgSecs float64
}

// PropagationByService returns per-service latency averages over the
// whole history.
func (s *Store) PropagationByService() ([]ServiceLatency, error) {
	rows, err := s.db.Query(`
		SELECT service, COUNT(*), AVG(push_to_healthy_secs)
		FROM propagation
		WHERE push_to_healthy_secs >= 0
		GROUP BY service
		ORDER BY service
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query propagation")
	}
	defer rows.Close()

	var out []ServiceLatency
	for rows.Next() {
		var l ServiceLatency
		if err := rows.Scan(&l.Service, &l.Samples, &l.AvgSecs); err != nil {
			return nil, errors.Wrap(err, "scan propagation")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
