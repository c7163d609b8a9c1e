package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go-action-pipeline/internal/model"
)

// ErrRunNotFound is returned when a run id has no history.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	spec TEXT NOT NULL,
	status TEXT NOT NULL,
	total_actions INTEGER NOT NULL DEFAULT 0,
	executed INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	baseline_rows INTEGER NOT NULL DEFAULT 0,
	final_rows INTEGER NOT NULL DEFAULT 0,
	preview TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	finished_at DATETIME,
	duration_ns INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS run_steps (
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	function TEXT NOT NULL,
	args TEXT,
	category TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	rows_in INTEGER NOT NULL,
	rows_out INTEGER NOT NULL,
	scalar TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	duration_ns INTEGER NOT NULL,
	PRIMARY KEY (run_id, idx)
);
CREATE TABLE IF NOT EXISTS run_errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	function TEXT NOT NULL DEFAULT '',
	error_type TEXT NOT NULL,
	message TEXT NOT NULL,
	severity TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_at);
`

// RunRecord is the persisted summary of one run.
type RunRecord struct {
	ID           string               `json:"id"`
	Status       string               `json:"status"`
	Spec         model.RunSpec        `json:"spec"`
	TotalActions int                  `json:"total_actions"`
	Executed     int                  `json:"executed"`
	Skipped      int                  `json:"skipped"`
	Failed       int                  `json:"failed"`
	BaselineRows int                  `json:"baseline_rows"`
	FinalRows    int                  `json:"final_rows"`
	Preview      *model.ResultPreview `json:"preview,omitempty"`
	Error        string               `json:"error,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
	Duration     time.Duration        `json:"duration"`
}

// DB keeps run history in a SQLite file.
type DB struct {
	conn *sql.DB
}

// Open connects to (and if needed creates) the history database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer at a time
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (s *DB) Close() error {
	return s.conn.Close()
}

// CreateRun stores a new run in running state.
func (s *DB) CreateRun(ctx context.Context, runID string, spec model.RunSpec, started time.Time) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO runs (id, spec, status, total_actions, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(specJSON), model.RunRunning, len(spec.Actions), started.UTC())
	return err
}

// CompleteRun records the final status of a run along with its steps and errors.
func (s *DB) CompleteRun(ctx context.Context, metrics model.RunMetrics, preview model.ResultPreview) error {
	previewJSON, err := json.Marshal(preview)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var finished interface{}
	if metrics.EndTime != nil {
		finished = metrics.EndTime.UTC()
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, executed = ?, skipped = ?, failed = ?, baseline_rows = ?,
			final_rows = ?, preview = ?, error_message = ?, finished_at = ?, duration_ns = ?
		WHERE id = ?`,
		metrics.Status, metrics.Executed, metrics.Skipped, metrics.Failed, metrics.BaselineRows,
		metrics.FinalRowCount, string(previewJSON), fatalMessage(metrics.Errors), finished,
		int64(metrics.Duration), metrics.RunID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, metrics.RunID)
	}

	for _, step := range metrics.Steps {
		args, err := marshalArgs(step.Args)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO run_steps
				(run_id, idx, function, args, category, status, message, rows_in, rows_out, scalar, started_at, duration_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			metrics.RunID, step.Index, step.Function, args, step.Category, step.Status, step.Message,
			step.RowsIn, step.RowsOut, step.ScalarRepr, step.StartTime.UTC(), int64(step.Duration)); err != nil {
			return fmt.Errorf("failed to save step %d: %w", step.Index, err)
		}
	}

	for _, e := range metrics.Errors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_errors (run_id, idx, function, error_type, message, severity, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			metrics.RunID, e.Index, e.Function, e.ErrorType, e.Message, e.Severity, e.Timestamp.UTC()); err != nil {
			return fmt.Errorf("failed to save error: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *DB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by id.
func (s *DB) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec, err
}

// GetSteps returns the recorded steps of a run in action order.
func (s *DB) GetSteps(ctx context.Context, runID string) ([]model.StepMetrics, error) {
	if err := s.exists(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT idx, function, args, category, status, message, rows_in, rows_out, scalar, started_at, duration_ns
		FROM run_steps WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []model.StepMetrics{}
	for rows.Next() {
		var step model.StepMetrics
		var args sql.NullString
		var duration int64
		if err := rows.Scan(&step.Index, &step.Function, &args, &step.Category, &step.Status, &step.Message,
			&step.RowsIn, &step.RowsOut, &step.ScalarRepr, &step.StartTime, &duration); err != nil {
			return nil, err
		}
		if args.Valid && args.String != "" {
			if err := json.Unmarshal([]byte(args.String), &step.Args); err != nil {
				return nil, err
			}
		}
		step.Duration = time.Duration(duration)
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// GetErrors returns the errors recorded for a run in the order they occurred.
func (s *DB) GetErrors(ctx context.Context, runID string) ([]model.ErrorDetail, error) {
	if err := s.exists(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT idx, function, error_type, message, severity, created_at
		FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := []model.ErrorDetail{}
	for rows.Next() {
		var e model.ErrorDetail
		if err := rows.Scan(&e.Index, &e.Function, &e.ErrorType, &e.Message, &e.Severity, &e.Timestamp); err != nil {
			return nil, err
		}
		details = append(details, e)
	}
	return details, rows.Err()
}

func (s *DB) exists(ctx context.Context, runID string) error {
	var one int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return err
}

const runColumns = `id, spec, status, total_actions, executed, skipped, failed, baseline_rows,
	final_rows, preview, error_message, created_at, finished_at, duration_ns`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var rec RunRecord
	var specJSON string
	var preview sql.NullString
	var finished sql.NullTime
	var duration int64
	if err := sc.Scan(&rec.ID, &specJSON, &rec.Status, &rec.TotalActions, &rec.Executed, &rec.Skipped,
		&rec.Failed, &rec.BaselineRows, &rec.FinalRows, &preview, &rec.Error, &rec.CreatedAt,
		&finished, &duration); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(specJSON), &rec.Spec); err != nil {
		return nil, fmt.Errorf("corrupt spec for run %s: %w", rec.ID, err)
	}
	if preview.Valid && preview.String != "" {
		rec.Preview = &model.ResultPreview{}
		if err := json.Unmarshal([]byte(preview.String), rec.Preview); err != nil {
			return nil, fmt.Errorf("corrupt preview for run %s: %w", rec.ID, err)
		}
	}
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	rec.Duration = time.Duration(duration)
	return &rec, nil
}

func marshalArgs(args map[string]interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// fatalMessage picks the message of the error that stopped the run, if any.
func fatalMessage(errs []model.ErrorDetail) string {
	for _, e := range errs {
		if e.Severity == "fatal" {
			return e.Message
		}
	}
	return ""
}
