package ledger

import (
	"database/sql"
	"fmt"

	"github.com/physimals/envbuild/internal/executor"
	"github.com/physimals/envbuild/internal/stage"
)

// Run represents a row in the runs table.
type Run struct {
	RunID         string
	Pipeline      string
	Stages        int
	Status        string
	FailedOrdinal *int
	FailedStage   string
	Reason        string
	StartedAt     string
	FinishedAt    string
}

// StageRun represents a row in the stage_runs table.
type StageRun struct {
	ID         int
	RunID      string
	Ordinal    int
	Stage      string
	Status     string
	Kind       string
	Reason     string
	DurationMs int
	Timestamp  string
}

// RunStarted inserts a new run row. Implements executor.Recorder.
func (l *Ledger) RunStarted(runID string, pipeline string, stages int) error {
	_, err := l.conn.Exec(
		`INSERT INTO runs (run_id, pipeline, stages) VALUES (?, ?, ?)`,
		runID, pipeline, stages,
	)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// StageFinished inserts a stage outcome row. Implements executor.Recorder.
func (l *Ledger) StageFinished(runID string, res stage.Result) error {
	status := "succeeded"
	var kind, reason string
	if res.Failure != nil {
		status = "failed"
		kind = string(res.Failure.Kind)
		reason = res.Failure.Reason
	}
	_, err := l.conn.Exec(
		`INSERT INTO stage_runs (run_id, ordinal, stage, status, kind, reason, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, res.Ordinal, res.Name, status, kind, reason, res.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("record stage run: %w", err)
	}
	return nil
}

// RunFinished records a run's terminal state. Implements executor.Recorder.
func (l *Ledger) RunFinished(runID string, res *executor.Result) error {
	var failedOrdinal interface{}
	if res.Status == executor.StatusFailed {
		failedOrdinal = res.FailedOrdinal
	}
	_, err := l.conn.Exec(
		`UPDATE runs SET status = ?, failed_ordinal = ?, failed_stage = ?, reason = ?, finished_at = datetime('now') WHERE run_id = ?`,
		string(res.Status), failedOrdinal, res.FailedStage, res.Reason, runID,
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// GetRuns returns the most recent runs, newest first.
func (l *Ledger) GetRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.conn.Query(
		`SELECT run_id, pipeline, stages, status, failed_ordinal, failed_stage, reason, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var failedOrdinal sql.NullInt64
		var failedStage, reason, finishedAt sql.NullString
		if err := rows.Scan(&r.RunID, &r.Pipeline, &r.Stages, &r.Status, &failedOrdinal, &failedStage, &reason, &r.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if failedOrdinal.Valid {
			v := int(failedOrdinal.Int64)
			r.FailedOrdinal = &v
		}
		r.FailedStage = failedStage.String
		r.Reason = reason.String
		r.FinishedAt = finishedAt.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID, or nil if not found.
func (l *Ledger) GetRun(runID string) (*Run, error) {
	row := l.conn.QueryRow(
		`SELECT run_id, pipeline, stages, status, failed_ordinal, failed_stage, reason, started_at, finished_at
		 FROM runs WHERE run_id = ?`, runID,
	)
	var r Run
	var failedOrdinal sql.NullInt64
	var failedStage, reason, finishedAt sql.NullString
	err := row.Scan(&r.RunID, &r.Pipeline, &r.Stages, &r.Status, &failedOrdinal, &failedStage, &reason, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if failedOrdinal.Valid {
		v := int(failedOrdinal.Int64)
		r.FailedOrdinal = &v
	}
	r.FailedStage = failedStage.String
	r.Reason = reason.String
	r.FinishedAt = finishedAt.String
	return &r, nil
}

// GetStageRuns returns the per-stage outcomes for a run, in execution order.
func (l *Ledger) GetStageRuns(runID string) ([]StageRun, error) {
	rows, err := l.conn.Query(
		`SELECT id, run_id, ordinal, stage, status, kind, reason, duration_ms, timestamp
		 FROM stage_runs WHERE run_id = ? ORDER BY ordinal`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()

	var stageRuns []StageRun
	for rows.Next() {
		var s StageRun
		var kind, reason sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&s.ID, &s.RunID, &s.Ordinal, &s.Stage, &s.Status, &kind, &reason, &durationMs, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		s.Kind = kind.String
		s.Reason = reason.String
		s.DurationMs = int(durationMs.Int64)
		stageRuns = append(stageRuns, s)
	}
	return stageRuns, rows.Err()
}
