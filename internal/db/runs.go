package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("db: run not found")

// Run is one recording session of the filter.
type Run struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	Source      string          `json:"source"`
	TickPeriod  float64         `json:"tick_period"`
	Config      json.RawMessage `json:"config"`
	Notes       string          `json:"notes,omitempty"`
	SampleCount int64           `json:"sample_count"`
}

// CreateRun inserts a new run with a fresh id. cfg is stored as JSON.
func (db *DB) CreateRun(source string, tickPeriod float64, cfg any, notes string) (*Run, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	run := &Run{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Source:     source,
		TickPeriod: tickPeriod,
		Config:     cfgJSON,
		Notes:      notes,
	}
	_, err = db.Exec(
		`INSERT INTO runs (run_id, started_at, source, tick_period, config_json, notes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UnixNano(), run.Source, run.TickPeriod, string(cfgJSON), run.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

const runColumns = `r.run_id, r.started_at, r.source, r.tick_period, r.config_json, r.notes,
	(SELECT COUNT(*) FROM samples s WHERE s.run_id = r.run_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		startedAt int64
		cfg       string
	)
	if err := row.Scan(&run.RunID, &startedAt, &run.Source, &run.TickPeriod, &cfg, &run.Notes, &run.SampleCount); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	run.Config = json.RawMessage(cfg)
	return run, nil
}

// Runs returns all runs, newest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`SELECT ` + runColumns + ` FROM runs r ORDER BY r.started_at DESC, r.run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run.
func (db *DB) GetRun(runID string) (*Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs r WHERE r.run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRunNotes replaces the free-text notes of a run.
func (db *DB) UpdateRunNotes(runID, notes string) error {
	res, err := db.Exec(`UPDATE runs SET notes = ? WHERE run_id = ?`, notes, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// DeleteRun removes a run and its samples.
func (db *DB) DeleteRun(runID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM samples WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete samples: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return tx.Commit()
}

// RecordEstimates appends estimates to a run in one transaction. The batch
// is refused whole if any estimate holds NaN or ±Inf, which SQLite would
// store as NULL.
func (db *DB) RecordEstimates(runID string, ests []imu.Estimate) error {
	if len(ests) == 0 {
		return nil
	}
	for _, e := range ests {
		if !e.IsFinite() {
			return fmt.Errorf("sample %d: %w", e.Seq, imu.ErrNonFinite)
		}
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO samples (
			run_id, seq, ts_ns,
			raw_angle_x, raw_angle_y, raw_angle_z,
			raw_rate_x, raw_rate_y, raw_rate_z,
			angle_x, angle_y, angle_z,
			rate_x, rate_y, rate_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range ests {
		_, err := stmt.Exec(
			runID, int64(e.Seq), e.TimestampNanos,
			e.Raw.Angle[0], e.Raw.Angle[1], e.Raw.Angle[2],
			e.Raw.Rate[0], e.Raw.Rate[1], e.Raw.Rate[2],
			e.Angle[0], e.Angle[1], e.Angle[2],
			e.Rate[0], e.Rate[1], e.Rate[2],
		)
		if err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// RunSamples returns up to limit estimates of a run in sequence order.
// A non-positive limit returns all of them.
func (db *DB) RunSamples(runID string, limit int) ([]imu.Estimate, error) {
	query := `SELECT seq, ts_ns,
			raw_angle_x, raw_angle_y, raw_angle_z,
			raw_rate_x, raw_rate_y, raw_rate_z,
			angle_x, angle_y, angle_z,
			rate_x, rate_y, rate_z
		FROM samples WHERE run_id = ? ORDER BY seq, rowid`
	args := []any{runID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ests := []imu.Estimate{}
	for rows.Next() {
		var (
			e   imu.Estimate
			seq int64
		)
		if err := rows.Scan(&seq, &e.TimestampNanos,
			&e.Raw.Angle[0], &e.Raw.Angle[1], &e.Raw.Angle[2],
			&e.Raw.Rate[0], &e.Raw.Rate[1], &e.Raw.Rate[2],
			&e.Angle[0], &e.Angle[1], &e.Angle[2],
			&e.Rate[0], &e.Rate[1], &e.Rate[2],
		); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Raw.Seq = e.Seq
		e.Raw.TimestampNanos = e.TimestampNanos
		ests = append(ests, e)
	}
	return ests, rows.Err()
}
