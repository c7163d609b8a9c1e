package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-action-pipeline/internal/model"
	"go-action-pipeline/pkg/utils"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(loadJobs(t), discardLogger())
}

func TestDispatchTable_CoversEveryKind(t *testing.T) {
	require.Len(t, kindNames, len(AllKinds))
	for _, k := range AllKinds {
		h, ok := handlers[k]
		require.True(t, ok, "no handler for %s", k)
		assert.True(t, (h.transform == nil) != (h.reduce == nil), "%s must have exactly one implementation", k)

		parsed, ok := ParseKind(k.String())
		assert.True(t, ok)
		assert.Equal(t, k, parsed)
	}
	assert.Len(t, handlers, len(AllKinds))
}

func TestRun_FilterThenSort(t *testing.T) {
	plan := mustPlan(t, `{
		"actions": [
			{"function": "select_rows", "args": {"column": "Processing_Time", "condition": "<= 50"}},
			{"function": "select_rows", "args": {"column": "Optimization_Category", "condition": "== \"Low Efficiency\""}},
			{"function": "sort_rows", "args": {"column": "Machine_Availability", "order": "desc"}}
		]
	}`)

	out, err := newTestExecutor(t).Run("run-a", plan)
	require.NoError(t, err)

	d, ok := out.Dataset()
	require.True(t, ok)
	assert.Equal(t, []string{"J003", "J001", "J004"}, jobIDs(d))
	for i := 0; i < d.Len(); i++ {
		assert.LessOrEqual(t, d.Value(i, "Processing_Time").(float64), 50.0)
		assert.Equal(t, "Low Efficiency", d.Value(i, "Optimization_Category"))
	}
	assert.Equal(t, 3, out.Metrics.Executed)
	assert.Equal(t, model.RunCompleted, out.Metrics.Status)
}

func TestRun_PlaceholderWithoutScalarIsSkipped(t *testing.T) {
	plan := mustPlan(t, `
actions:
  - function: add_derived_column
    args:
      name: gap
      formula: "Processing_Time - {last_scalar}"
  - function: count_rows
`)

	out, err := newTestExecutor(t).Run("run-skip", plan)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Metrics.Skipped)
	assert.Equal(t, model.StepSkipped, out.Metrics.Steps[0].Status)
	require.Len(t, out.Metrics.Errors, 1)
	assert.Equal(t, "placeholder_unresolved", out.Metrics.Errors[0].ErrorType)
	assert.Nil(t, out.Final.Snapshot, "skipped action must not produce a snapshot")

	s, ok := out.Scalar()
	require.True(t, ok)
	assert.Equal(t, 8, s.Value)
}

func TestRun_PlaceholderResolvedFromLastScalar(t *testing.T) {
	plan := mustPlan(t, `
actions:
  - function: calculate_average
    args: {column: Processing_Time}
  - function: add_derived_column
    args: {name: gap, formula: "Processing_Time - {last_scalar}"}
`)

	out, err := newTestExecutor(t).Run("run-resolve", plan)
	require.NoError(t, err)

	d, ok := out.Dataset()
	require.True(t, ok)
	assert.InDelta(t, 45-49.375, d.Value(0, "gap"), 1e-9)
	for i := 0; i < d.Len(); i++ {
		assert.NotContains(t, utils.FormatValue(d.Value(i, "gap")), "last_scalar")
	}
	assert.InDelta(t, 49.375, out.Final.LastScalar.Value, 1e-9)
}

func TestRun_PlaceholderWithTableScalarIsSkipped(t *testing.T) {
	plan := mustPlan(t, `
actions:
  - function: calculate_failure_rate
    args: {group_column: Machine_ID}
  - function: add_derived_column
    args: {name: gap, formula: "Processing_Time * {last_scalar}"}
`)

	out, err := newTestExecutor(t).Run("run-table", plan)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Metrics.Skipped)

	s, ok := out.Scalar()
	require.True(t, ok)
	assert.True(t, s.IsTable())
}

func TestRun_UnknownFunctionIsSkipped(t *testing.T) {
	plan := mustPlan(t, `{"actions": [
		{"function": "summon_forecast", "args": {}},
		{"function": "top_n", "args": {"column": "Processing_Time", "n": "2"}}
	]}`)

	out, err := newTestExecutor(t).Run("run-unknown", plan)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Metrics.Skipped)
	assert.Equal(t, 1, out.Metrics.Executed)
	assert.Equal(t, string(CategoryUnknown), out.Metrics.Steps[0].Category)
	assert.Equal(t, "unknown_function", out.Metrics.Errors[0].ErrorType)

	d, ok := out.Dataset()
	require.True(t, ok)
	assert.Equal(t, []string{"J005", "J002"}, jobIDs(d))
}

func TestRun_FatalErrorStopsRun(t *testing.T) {
	plan := mustPlan(t, `{"actions": [
		{"function": "sort_rows", "args": {"column": "Processing_Time"}},
		{"function": "group_by_aggregate", "args": {"group_column": "Machine_ID", "target_column": "Processing_Time", "agg": "cov"}},
		{"function": "count_rows"}
	]}`)

	out, err := newTestExecutor(t).Run("run-fatal", plan)
	require.Error(t, err)
	assert.False(t, IsRecoverable(err))
	assert.ErrorIs(t, err, ErrAggregationArgument)

	var ae *ActionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 1, ae.Index)
	assert.Equal(t, "group_by_aggregate", ae.Function)
	assert.Equal(t, "cov", ae.Args["agg"])
	assert.Contains(t, err.Error(), "group_by_aggregate")

	assert.Equal(t, model.RunFailed, out.Metrics.Status)
	assert.Len(t, out.Metrics.Steps, 2, "actions after the failure must not run")
	assert.Nil(t, out.Final.LastScalar)
	assert.NotNil(t, out.Final.Snapshot)
}

func TestRun_ReducerLeavesSnapshotUntouched(t *testing.T) {
	plan := mustPlan(t, `{"actions": [
		{"function": "select_rows", "args": {"column": "Job_Status", "condition": "== Failed"}},
		{"function": "count_rows"},
		{"function": "calculate_sum", "args": {"column": "Processing_Time"}}
	]}`)

	out, err := newTestExecutor(t).Run("run-reduce", plan)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Final.Snapshot.Len())
	assert.Equal(t, 165.0, out.Final.LastScalar.Value)
	_, ok := out.Dataset()
	assert.False(t, ok)
	assert.Equal(t, "165", out.Metrics.Steps[2].ScalarRepr)
}

func TestRun_ReducersDefaultToBaseline(t *testing.T) {
	plan := mustPlan(t, `{"actions": [{"function": "calculate_delay_avg", "args": {"unit": "minutes", "abs": true}}]}`)

	out, err := newTestExecutor(t).Run("run-delay", plan)
	require.NoError(t, err)
	assert.Nil(t, out.Final.Snapshot)
	assert.InDelta(t, 2.5, out.Final.LastScalar.Value, 1e-9)
}

func TestRun_BaselineIsNeverModified(t *testing.T) {
	exec := newTestExecutor(t)
	plan := mustPlan(t, `
actions:
  - function: filter_date_range
    args: {column: Actual_Start, start: 2023-03-18}
  - function: add_derived_column
    args: {name: Processing_Time, formula: "Processing_Time * 100"}
  - function: rolling_average
    args: {column: Energy_Consumption, group_by: Machine_ID}
  - function: group_top_n
    args: {group_column: Machine_ID, sort_column: Processing_Time, keep_all: false}
  - function: group_by_aggregate
    args: {group_column: Machine_ID, target_column: Processing_Time, keep_all: true}
`)

	_, err := exec.Run("run-immutable", plan)
	require.NoError(t, err)

	assert.True(t, exec.Baseline().Equal(loadJobs(t)))
}

func TestRun_ScenarioAggregateAverage(t *testing.T) {
	plan := mustPlan(t, `{"actions": [{"function": "group_by_aggregate", "args": {
		"group_column": "Machine_ID", "target_column": "Energy_Consumption", "agg": "avg", "keep_all": false}}]}`)

	out, err := newTestExecutor(t).Run("run-c", plan)
	require.NoError(t, err)

	d, ok := out.Dataset()
	require.True(t, ok)
	assert.Equal(t, 3, d.Len())
	assert.InDelta(t, 38.0/3.0, d.Value(0, "avg_Energy_Consumption"), 1e-9)
	assert.InDelta(t, 31.0/3.0, d.Value(1, "avg_Energy_Consumption"), 1e-9)
	assert.InDelta(t, 13.0, d.Value(2, "avg_Energy_Consumption"), 1e-9)
}

func TestStep_ReturnsNewState(t *testing.T) {
	exec := newTestExecutor(t)
	start := State{}

	next, err := exec.Step(start, 0, model.Action{Function: "count_rows"})
	require.NoError(t, err)
	assert.Nil(t, start.LastScalar)
	assert.Equal(t, 8, next.LastScalar.Value)

	same, err := exec.Step(next, 1, model.Action{Function: "nope"})
	assert.ErrorIs(t, err, ErrUnknownFunction)
	assert.True(t, IsRecoverable(err))
	assert.Equal(t, next, same)
}

func TestParsePlan_Errors(t *testing.T) {
	for name, payload := range map[string]string{
		"empty":            "",
		"invalid json":     `{"actions": [`,
		"missing actions":  `{"steps": []}`,
		"null actions":     "actions: null\n",
		"not a mapping":    "just some words",
		"actions not list": `{"actions": "select_rows"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan([]byte(payload))
			assert.ErrorIs(t, err, ErrInputParse)
		})
	}
}

func TestParseRunSpec_WithOutputOptions(t *testing.T) {
	spec, err := ParseRunSpec([]byte(`
actions:
  - function: top_n
    args: {column: Processing_Time, n: 3}
export:
  file: top.csv
preview_rows: 3
`))
	require.NoError(t, err)
	require.Len(t, spec.Actions, 1)
	assert.Equal(t, "top_n", spec.Actions[0].Function)
	assert.Equal(t, 3, spec.Actions[0].Args["n"])
	assert.Equal(t, "top.csv", spec.Export.File)
	assert.Equal(t, 3, spec.PreviewRows)
}

func TestOutcome_Preview(t *testing.T) {
	exec := newTestExecutor(t)

	out, err := exec.Run("run-preview", mustPlan(t, `{"actions": [{"function": "sort_rows", "args": {"column": "Job_ID"}}]}`))
	require.NoError(t, err)
	p := out.Preview(3)
	assert.Equal(t, "dataset", p.Kind)
	assert.Equal(t, 8, p.TotalRows)
	require.Len(t, p.Rows, 3)
	assert.Equal(t, "2023-03-18 08:00:00", p.Rows[0]["Scheduled_Start"])

	out, err = exec.Run("run-none", model.ActionPlan{Actions: []model.Action{}})
	require.NoError(t, err)
	assert.Equal(t, "none", out.Preview(0).Kind)
}

type memoryStore struct {
	created   []string
	completed []model.RunMetrics
}

func (m *memoryStore) CreateRun(_ context.Context, runID string, _ model.RunSpec, _ time.Time) error {
	m.created = append(m.created, runID)
	return nil
}

func (m *memoryStore) CompleteRun(_ context.Context, metrics model.RunMetrics, _ model.ResultPreview) error {
	m.completed = append(m.completed, metrics)
	return nil
}

func TestRunner_RecordsAndExports(t *testing.T) {
	dir := t.TempDir()
	st := &memoryStore{}
	runner := NewRunner(loadJobs(t), st, utils.NewOutputManager(dir), discardLogger())

	spec, err := ParseRunSpec([]byte(`{
		"actions": [{"function": "top_n", "args": {"column": "Energy_Consumption", "n": 2}}],
		"export": {"file": "top.csv"}
	}`))
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), "run-1", spec)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Status)
	require.NotNil(t, res.Export)
	assert.True(t, res.Export.Success, res.Export.Error)
	assert.Equal(t, 2, res.Export.RecordCount)

	content, err := os.ReadFile(filepath.Join(dir, "run-1", "top.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "J005")
	assert.Equal(t, []string{"run-1"}, st.created)
	require.Len(t, st.completed, 1)
	assert.Equal(t, 1, st.completed[0].Executed)
}

func TestRunner_FatalRunIsRecorded(t *testing.T) {
	st := &memoryStore{}
	runner := NewRunner(loadJobs(t), st, nil, discardLogger())

	res, err := runner.Run(context.Background(), "run-2", model.RunSpec{Actions: []model.Action{
		{Function: "select_rows", Args: map[string]interface{}{"column": "Processing_Time", "condition": "about 5"}},
	}})
	require.ErrorIs(t, err, ErrConditionSyntax)
	assert.Equal(t, model.RunFailed, res.Status)
	assert.NotEmpty(t, res.Error)
	require.Len(t, st.completed, 1)
	assert.Equal(t, 1, st.completed[0].Failed)
}
