// Package status records which checkpoints are complete and the history of
// pipeline runs. A checkpoint on disk is only trusted when its record says
// it was finished with the same checksum.
package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DBFile is the sqlite database name inside the state directory.
const DBFile = "status.db"

// State of a checkpoint record.
type State string

const (
	Absent   State = "absent"
	Building State = "building"
	Complete State = "complete"
)

// Run states.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Key identifies one checkpoint. Model and Sim are empty at the sample level
// and Sim is empty at the model level.
type Key struct {
	Sample string
	Model  string
	Sim    string
}

// SampleKey is the key of a sample checkpoint.
func SampleKey(sample int) Key {
	return Key{Sample: strconv.Itoa(sample)}
}

// SimKey is the key of a sim checkpoint.
func SimKey(sample, model, sim int) Key {
	return Key{Sample: strconv.Itoa(sample), Model: strconv.Itoa(model), Sim: strconv.Itoa(sim)}
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteString("sample=" + k.Sample)
	if k.Model != "" {
		b.WriteString("/model=" + k.Model)
	}
	if k.Sim != "" {
		b.WriteString("/sim=" + k.Sim)
	}
	return b.String()
}

// Record is the stored status of one checkpoint.
type Record struct {
	Key       Key       `json:"-"`
	State     State     `json:"state"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run is one row of run history.
type Run struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Sample     string    `json:"sample"`
	Smart      bool      `json:"smart"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Options selects the backend.
type Options struct {
	Backend string
	// DSN is the postgres connection string.
	DSN string
	// StateDir holds the sqlite database.
	StateDir string
}

// Store persists checkpoint records over database/sql.
type Store struct {
	db      *sql.DB
	backend string
	now     func() time.Time
}

// Open connects to the configured backend and initializes the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = BackendSQLite
	}

	var db *sql.DB
	var err error
	switch backend {
	case BackendSQLite:
		if err := os.MkdirAll(opts.StateDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		dbPath := filepath.Join(opts.StateDir, DBFile)
		db, err = sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite works best with single writer
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, errors.New("postgres status backend requires cache.dsn")
		}
		db, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(4)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to reach postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown status backend %q", backend)
	}

	s := &Store{db: db, backend: backend, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.backend != BackendPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stampLayout sorts lexically in time order.
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *Store) stamp() string {
	return s.now().Format(stampLayout)
}

func parseStamp(v string) time.Time {
	t, err := time.Parse(stampLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Get returns the record for key, with State Absent when there is none.
func (s *Store) Get(ctx context.Context, key Key) (Record, error) {
	rec := Record{Key: key, State: Absent}
	var state, updated string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT state, path, checksum, run_id, updated_at FROM checkpoints
		 WHERE sample_id = ? AND model_id = ? AND sim_id = ?`),
		key.Sample, key.Model, key.Sim).Scan(&state, &rec.Path, &rec.Checksum, &rec.RunID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("reading status of %s: %w", key, err)
	}
	rec.State = State(state)
	rec.UpdatedAt = parseStamp(updated)
	return rec, nil
}

// MarkBuilding records that the checkpoint at path is being (re)built.
func (s *Store) MarkBuilding(ctx context.Context, key Key, path, runID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO checkpoints (sample_id, model_id, sim_id, state, path, checksum, run_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', ?, ?)
		 ON CONFLICT (sample_id, model_id, sim_id) DO UPDATE SET
		   state = excluded.state, path = excluded.path, checksum = '',
		   run_id = excluded.run_id, updated_at = excluded.updated_at`),
		key.Sample, key.Model, key.Sim, string(Building), path, runID, s.stamp())
	if err != nil {
		return fmt.Errorf("marking %s building: %w", key, err)
	}
	return nil
}

// MarkComplete records the checksum of a finished checkpoint.
func (s *Store) MarkComplete(ctx context.Context, key Key, path, checksum, runID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO checkpoints (sample_id, model_id, sim_id, state, path, checksum, run_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (sample_id, model_id, sim_id) DO UPDATE SET
		   state = excluded.state, path = excluded.path, checksum = excluded.checksum,
		   run_id = excluded.run_id, updated_at = excluded.updated_at`),
		key.Sample, key.Model, key.Sim, string(Complete), path, checksum, runID, s.stamp())
	if err != nil {
		return fmt.Errorf("marking %s complete: %w", key, err)
	}
	return nil
}

// Clear removes the record for key.
func (s *Store) Clear(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM checkpoints WHERE sample_id = ? AND model_id = ? AND sim_id = ?`),
		key.Sample, key.Model, key.Sim)
	if err != nil {
		return fmt.Errorf("clearing %s: %w", key, err)
	}
	return nil
}

// List returns every record of a sample ordered numerically by model and
// sim, the sample record first.
func (s *Store) List(ctx context.Context, sample string) ([]Record, error) {
	// IDs are decimal text, so length first puts "2" before "10".
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT model_id, sim_id, state, path, checksum, run_id, updated_at FROM checkpoints
		 WHERE sample_id = ?
		 ORDER BY LENGTH(model_id), model_id, LENGTH(sim_id), sim_id`), sample)
	if err != nil {
		return nil, fmt.Errorf("listing status of sample %s: %w", sample, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{Key: Key{Sample: sample}}
		var state, updated string
		if err := rows.Scan(&rec.Key.Model, &rec.Key.Sim, &state, &rec.Path, &rec.Checksum, &rec.RunID, &updated); err != nil {
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		rec.State = State(state)
		rec.UpdatedAt = parseStamp(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// BeginRun records the start of a run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, name, sample string, smart bool) (string, error) {
	id := uuid.NewString()
	smartInt := 0
	if smart {
		smartInt = 1
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO runs (id, name, sample_id, smart, state, started_at) VALUES (?, ?, ?, ?, ?, ?)`),
		id, name, sample, smartInt, RunRunning, s.stamp())
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a run. A nil runErr marks it succeeded.
func (s *Store) FinishRun(ctx context.Context, id string, runErr error) error {
	state, msg := RunSucceeded, ""
	if runErr != nil {
		state, msg = RunFailed, runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE runs SET state = ?, error = ?, finished_at = ? WHERE id = ?`),
		state, msg, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// Runs returns the most recent runs of the named run config, newest first.
func (s *Store) Runs(ctx context.Context, name string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, name, sample_id, smart, state, error, started_at, finished_at FROM runs
		 WHERE name = ? ORDER BY started_at DESC LIMIT ?`), name, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var smart int
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Name, &r.Sample, &smart, &r.State, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Smart = smart != 0
		r.StartedAt = parseStamp(started)
		r.FinishedAt = parseStamp(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
