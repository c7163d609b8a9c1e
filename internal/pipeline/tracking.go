package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"go-action-pipeline/internal/model"
)

// RunTracker records what happened to every action of a run. A run is
// single-threaded, so the tracker is not safe for concurrent use.
type RunTracker struct {
	metrics model.RunMetrics
	logger  *slog.Logger
}

// NewRunTracker starts tracking a run of totalActions actions.
func NewRunTracker(runID string, totalActions, baselineRows int, logger *slog.Logger) *RunTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunTracker{
		metrics: model.RunMetrics{
			RunID:        runID,
			Status:       model.RunRunning,
			StartTime:    time.Now(),
			TotalActions: totalActions,
			BaselineRows: baselineRows,
			Steps:        make([]model.StepMetrics, 0, totalActions),
		},
		logger: logger.With("run_id", runID),
	}
}

// RecordExecuted records a successful action.
func (t *RunTracker) RecordExecuted(step model.StepMetrics) {
	step.Status = model.StepExecuted
	t.metrics.Executed++
	t.metrics.Steps = append(t.metrics.Steps, step)
	t.logger.Info("action executed",
		"index", step.Index,
		"function", step.Function,
		"category", step.Category,
		"rows_in", step.RowsIn,
		"rows_out", step.RowsOut,
		"duration", step.Duration,
	)
}

// RecordSkipped records an action skipped for a recoverable reason.
func (t *RunTracker) RecordSkipped(step model.StepMetrics, err error) {
	step.Status = model.StepSkipped
	step.Message = err.Error()
	t.metrics.Skipped++
	t.metrics.Steps = append(t.metrics.Steps, step)
	t.metrics.Errors = append(t.metrics.Errors, errorDetail(step, err, "warning"))
	t.logger.Warn("action skipped",
		"index", step.Index,
		"function", step.Function,
		"reason", ErrorKind(err),
		"error", err,
	)
}

// RecordFailed records the action that aborted the run.
func (t *RunTracker) RecordFailed(step model.StepMetrics, err error) {
	step.Status = model.StepFailed
	step.Message = err.Error()
	t.metrics.Failed++
	t.metrics.Steps = append(t.metrics.Steps, step)
	t.metrics.Errors = append(t.metrics.Errors, errorDetail(step, err, "fatal"))
	t.logger.Error("action failed",
		"index", step.Index,
		"function", step.Function,
		"args", step.Args,
		"error", err,
	)
}

// RecordRunError records a failure that is not tied to a single action,
// such as an unparseable plan.
func (t *RunTracker) RecordRunError(err error) {
	t.metrics.Errors = append(t.metrics.Errors, model.ErrorDetail{
		Index:     -1,
		ErrorType: ErrorKind(err),
		Message:   err.Error(),
		Severity:  "fatal",
		Timestamp: time.Now(),
	})
	t.logger.Error("run aborted", "error", err)
}

// Finish closes the run with the given status and returns its metrics.
func (t *RunTracker) Finish(status string, finalRows int) model.RunMetrics {
	end := time.Now()
	t.metrics.Status = status
	t.metrics.EndTime = &end
	t.metrics.Duration = end.Sub(t.metrics.StartTime)
	t.metrics.FinalRowCount = finalRows
	t.logger.Info("run finished",
		"status", status,
		"executed", t.metrics.Executed,
		"skipped", t.metrics.Skipped,
		"failed", t.metrics.Failed,
		"duration", t.metrics.Duration,
	)
	return t.Metrics()
}

// Metrics returns a copy of the metrics gathered so far.
func (t *RunTracker) Metrics() model.RunMetrics {
	m := t.metrics
	m.Steps = append([]model.StepMetrics(nil), t.metrics.Steps...)
	m.Errors = append([]model.ErrorDetail(nil), t.metrics.Errors...)
	return m
}

func errorDetail(step model.StepMetrics, err error, severity string) model.ErrorDetail {
	msg := err.Error()
	var ae *ActionError
	if errors.As(err, &ae) {
		msg = ae.Err.Error()
	}
	return model.ErrorDetail{
		Index:     step.Index,
		Function:  step.Function,
		Args:      step.Args,
		ErrorType: ErrorKind(err),
		Message:   msg,
		Severity:  severity,
		Timestamp: time.Now(),
	}
}
