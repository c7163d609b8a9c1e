package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-action-pipeline/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSpec() model.RunSpec {
	return model.RunSpec{
		Actions: []model.Action{
			{Function: "select_rows", Args: map[string]interface{}{"column": "Job_Status", "condition": "== Completed"}},
			{Function: "count_rows"},
		},
		PreviewRows: 5,
	}
}

func TestDB_CreateAndCompleteRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.CreateRun(ctx, "run-1", sampleSpec(), started))

	rec, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, rec.Status)
	assert.Equal(t, 2, rec.TotalActions)
	assert.Equal(t, "select_rows", rec.Spec.Actions[0].Function)
	assert.True(t, started.Equal(rec.CreatedAt))
	assert.Nil(t, rec.FinishedAt)
	assert.Nil(t, rec.Preview)

	end := started.Add(2 * time.Second)
	metrics := model.RunMetrics{
		RunID:         "run-1",
		Status:        model.RunCompleted,
		StartTime:     started,
		EndTime:       &end,
		Duration:      2 * time.Second,
		TotalActions:  2,
		Executed:      2,
		BaselineRows:  8,
		FinalRowCount: 2,
		Steps: []model.StepMetrics{
			{Index: 0, Function: "select_rows", Args: map[string]interface{}{"column": "Job_Status"}, Category: "transform", Status: model.StepExecuted, RowsIn: 8, RowsOut: 2, StartTime: started, Duration: time.Millisecond},
			{Index: 1, Function: "count_rows", Category: "reduce", Status: model.StepExecuted, RowsIn: 2, RowsOut: 2, StartTime: started, ScalarRepr: "2"},
		},
	}
	preview := model.ResultPreview{Kind: "scalar", Scalar: 2}
	require.NoError(t, db.CompleteRun(ctx, metrics, preview))

	rec, err = db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, rec.Status)
	assert.Equal(t, 2, rec.Executed)
	assert.Equal(t, 8, rec.BaselineRows)
	assert.Equal(t, 2, rec.FinalRows)
	assert.Equal(t, 2*time.Second, rec.Duration)
	require.NotNil(t, rec.FinishedAt)
	assert.True(t, end.Equal(*rec.FinishedAt))
	require.NotNil(t, rec.Preview)
	assert.Equal(t, "scalar", rec.Preview.Kind)
	assert.Equal(t, 2.0, rec.Preview.Scalar)

	steps, err := db.GetSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "Job_Status", steps[0].Args["column"])
	assert.Equal(t, time.Millisecond, steps[0].Duration)
	assert.Nil(t, steps[1].Args)
	assert.Equal(t, "2", steps[1].ScalarRepr)

	errs, err := db.GetErrors(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestDB_FailedRunKeepsFatalMessage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.CreateRun(ctx, "run-2", sampleSpec(), now))
	metrics := model.RunMetrics{
		RunID:   "run-2",
		Status:  model.RunFailed,
		Skipped: 1,
		Failed:  1,
		Errors: []model.ErrorDetail{
			{Index: 0, Function: "mystery", ErrorType: "unknown_function", Message: "unknown function", Severity: "warning", Timestamp: now},
			{Index: 1, Function: "group_by_aggregate", ErrorType: "aggregation_argument", Message: "cov requires other_column", Severity: "fatal", Timestamp: now},
		},
	}
	require.NoError(t, db.CompleteRun(ctx, metrics, model.ResultPreview{Kind: "none"}))

	rec, err := db.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, rec.Status)
	assert.Equal(t, "cov requires other_column", rec.Error)
	assert.Nil(t, rec.FinishedAt)

	errs, err := db.GetErrors(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "warning", errs[0].Severity)
	assert.Equal(t, "group_by_aggregate", errs[1].Function)
}

func TestDB_ListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.CreateRun(ctx, id, sampleSpec(), base.Add(time.Duration(i)*time.Hour)))
	}

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)

	runs, err = db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestDB_UnknownRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = db.GetSteps(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = db.GetErrors(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = db.CompleteRun(ctx, model.RunMetrics{RunID: "missing", Status: model.RunCompleted}, model.ResultPreview{})
	assert.ErrorIs(t, err, ErrRunNotFound)

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
