package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/localiser/internal/localiser/controller"
)

// Run is one recorded localiser session.
type Run struct {
	RunID        string
	Name         string
	NumParticles int
	// Seed is stored as its int64 bit pattern; SQLite has no unsigned integers.
	Seed        uint64
	ConfigJSON  json.RawMessage
	StartedAtNs int64

	FinishedAtNs      *int64
	Steps             int
	TransformFailures int
	MeanError         *float64
	FinalError        *float64
}

// RunSummary is written when a run finishes.
type RunSummary struct {
	FinishedAt        time.Time
	Steps             int
	TransformFailures int
	MeanError         float64
	FinalError        float64
	HasError          bool // false leaves the error columns NULL
}

// SnapshotRow is one published filter snapshot.
type SnapshotRow struct {
	RunID         string
	Step          int
	StampNs       int64
	HasEstimate   bool
	X, Y, Yaw     float64
	EffectiveSize float64
	Reseeded      bool
}

// ParticleRow is one stored particle of a snapshot.
type ParticleRow struct {
	Index   int
	X, Y, Z float64
	Yaw     float64
	Weight  float64
}

// RunStore reads and writes localiser runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore wraps an open, migrated database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

// InsertRun stores a new run. RunID and StartedAtNs are filled in when empty.
func (s *RunStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAtNs == 0 {
		run.StartedAtNs = time.Now().UnixNano()
	}

	query := `
		INSERT INTO localiser_runs (
			run_id, name, num_particles, seed, config_json, started_at_ns
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.RunID,
		run.Name,
		run.NumParticles,
		int64(run.Seed),
		nullString(string(run.ConfigJSON)),
		run.StartedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *RunStore) FinishRun(runID string, sum RunSummary) error {
	var mean, final sql.NullFloat64
	if sum.HasError {
		mean = sql.NullFloat64{Float64: sum.MeanError, Valid: true}
		final = sql.NullFloat64{Float64: sum.FinalError, Valid: true}
	}

	res, err := s.db.Exec(`
		UPDATE localiser_runs
		SET finished_at_ns = ?, steps = ?, transform_failures = ?, mean_error = ?, final_error = ?
		WHERE run_id = ?
	`, sum.FinishedAt.UnixNano(), sum.Steps, sum.TransformFailures, mean, final, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

const runColumns = `run_id, name, num_particles, seed, config_json, started_at_ns,
	finished_at_ns, steps, transform_failures, mean_error, final_error`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var seed int64
	var configJSON sql.NullString
	var finishedAtNs sql.NullInt64
	var meanError, finalError sql.NullFloat64

	err := row.Scan(
		&run.RunID,
		&run.Name,
		&run.NumParticles,
		&seed,
		&configJSON,
		&run.StartedAtNs,
		&finishedAtNs,
		&run.Steps,
		&run.TransformFailures,
		&meanError,
		&finalError,
	)
	if err != nil {
		return nil, err
	}

	run.Seed = uint64(seed)
	if configJSON.Valid {
		run.ConfigJSON = json.RawMessage(configJSON.String)
	}
	if finishedAtNs.Valid {
		v := finishedAtNs.Int64
		run.FinishedAtNs = &v
	}
	if meanError.Valid {
		v := meanError.Float64
		run.MeanError = &v
	}
	if finalError.Valid {
		v := finalError.Float64
		run.FinalError = &v
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM localiser_runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM localiser_runs ORDER BY started_at_ns DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// InsertSnapshot stores a snapshot and, when ps is non-empty, its particles
// in a single transaction.
func (s *RunStore) InsertSnapshot(ctx context.Context, row SnapshotRow, ps []ParticleRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	var x, y, yaw, ess sql.NullFloat64
	if row.HasEstimate {
		x = sql.NullFloat64{Float64: row.X, Valid: true}
		y = sql.NullFloat64{Float64: row.Y, Valid: true}
		yaw = sql.NullFloat64{Float64: row.Yaw, Valid: true}
		ess = sql.NullFloat64{Float64: row.EffectiveSize, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO localiser_snapshots (
			run_id, step, stamp_ns, est_x, est_y, est_yaw, effective_size, reseeded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.RunID, row.Step, row.StampNs, x, y, yaw, ess, row.Reseeded)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if len(ps) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO localiser_particles (run_id, step, idx, x, y, z, yaw, weight)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare particles: %w", err)
		}
		defer stmt.Close()

		for _, p := range ps {
			if _, err := stmt.ExecContext(ctx, row.RunID, row.Step, p.Index, p.X, p.Y, p.Z, p.Yaw, p.Weight); err != nil {
				return fmt.Errorf("insert particle %d: %w", p.Index, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the snapshots of a run in step order.
func (s *RunStore) ListSnapshots(runID string) ([]SnapshotRow, error) {
	rows, err := s.db.Query(`
		SELECT run_id, step, stamp_ns, est_x, est_y, est_yaw, effective_size, reseeded
		FROM localiser_snapshots
		WHERE run_id = ?
		ORDER BY step
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var x, y, yaw, ess sql.NullFloat64
		if err := rows.Scan(&r.RunID, &r.Step, &r.StampNs, &x, &y, &yaw, &ess, &r.Reseeded); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if x.Valid {
			r.HasEstimate = true
			r.X, r.Y, r.Yaw, r.EffectiveSize = x.Float64, y.Float64, yaw.Float64, ess.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSnapshotParticles returns the particles stored for one step, in
// filter order.
func (s *RunStore) GetSnapshotParticles(runID string, step int) ([]ParticleRow, error) {
	rows, err := s.db.Query(`
		SELECT idx, x, y, z, yaw, weight
		FROM localiser_particles
		WHERE run_id = ? AND step = ?
		ORDER BY idx
	`, runID, step)
	if err != nil {
		return nil, fmt.Errorf("get particles: %w", err)
	}
	defer rows.Close()

	var out []ParticleRow
	for rows.Next() {
		var p ParticleRow
		if err := rows.Scan(&p.Index, &p.X, &p.Y, &p.Z, &p.Yaw, &p.Weight); err != nil {
			return nil, fmt.Errorf("scan particle: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Recorder stores controller snapshots under one run.
type Recorder struct {
	store         *RunStore
	runID         string
	particleEvery int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithParticleEvery stores the full particle set every n steps. n <= 0
// stores estimates only.
func WithParticleEvery(n int) RecorderOption {
	return func(r *Recorder) { r.particleEvery = n }
}

// NewRecorder records snapshots into runID, which must already exist.
func NewRecorder(store *RunStore, runID string, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, runID: runID}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish implements controller.Publisher.
func (r *Recorder) Publish(ctx context.Context, snap controller.Snapshot) error {
	row := SnapshotRow{
		RunID:       r.runID,
		Step:        snap.Step,
		StampNs:     snap.Stamp.UnixNano(),
		HasEstimate: snap.HasEstimate,
		Reseeded:    snap.Reseeded,
	}
	if snap.HasEstimate {
		row.X, row.Y, row.Yaw = snap.Estimate.X, snap.Estimate.Y, snap.Estimate.Yaw
		row.EffectiveSize = snap.Estimate.EffectiveSize
	}

	var ps []ParticleRow
	if r.particleEvery > 0 && snap.Step%r.particleEvery == 0 {
		ps = make([]ParticleRow, len(snap.Particles))
		for i, p := range snap.Particles {
			t := p.Pose.Translation
			ps[i] = ParticleRow{Index: i, X: t.X, Y: t.Y, Z: t.Z, Yaw: p.Pose.Yaw(), Weight: p.Weight}
		}
	}
	return r.store.InsertSnapshot(ctx, row, ps)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
