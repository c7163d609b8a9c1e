package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go-action-pipeline/internal/model"
	"go-action-pipeline/pkg/utils"
)

// DefaultPreviewRows bounds the rows shown for a final snapshot.
const DefaultPreviewRows = 10

// State is the running state of one pipeline run. A nil Snapshot means the
// baseline is current; LastScalar holds the most recent reduction.
type State struct {
	Snapshot   *Dataset
	LastScalar *Scalar
}

// ------------------- Executor -------------------

// Executor interprets action plans against a read-only baseline.
type Executor struct {
	baseline *Dataset
	logger   *slog.Logger
}

// NewExecutor creates an executor over baseline.
func NewExecutor(baseline *Dataset, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{baseline: baseline, logger: logger}
}

// Baseline returns the dataset actions start from.
func (e *Executor) Baseline() *Dataset { return e.baseline }

// Current returns the dataset the next action would read.
func (e *Executor) Current(s State) *Dataset {
	if s.Snapshot != nil {
		return s.Snapshot
	}
	return e.baseline
}

// Step applies one action and returns the next state. On error the input
// state is returned unchanged; IsRecoverable tells whether the run may go on.
func (e *Executor) Step(s State, index int, action model.Action) (State, error) {
	fail := func(err error) (State, error) {
		return s, &ActionError{Index: index, Function: action.Function, Args: action.Args, Err: err}
	}

	kind, ok := ParseKind(action.Function)
	if !ok {
		return fail(fmt.Errorf("%w: %q", ErrUnknownFunction, action.Function))
	}

	args := action.Args
	if kind == KindAddDerivedColumn {
		resolved, err := resolvePlaceholder(args, s.LastScalar)
		if err != nil {
			return fail(err)
		}
		args = resolved
	}

	h := handlers[kind]
	switch h.category {
	case CategoryTransform:
		out, err := h.transform(e.Current(s), args)
		if err != nil {
			return fail(err)
		}
		s.Snapshot = out
	case CategoryReduce:
		out, err := h.reduce(e.Current(s), args)
		if err != nil {
			return fail(err)
		}
		s.LastScalar = out
	}
	return s, nil
}

// resolvePlaceholder substitutes the last scalar into the formula argument.
// The args map is copied, never modified.
func resolvePlaceholder(args map[string]interface{}, last *Scalar) (map[string]interface{}, error) {
	formula, ok := args["formula"].(string)
	if !ok || !strings.Contains(formula, LastScalarPlaceholder) {
		return args, nil
	}
	lit, ok := last.Literal()
	if !ok {
		reason := "no scalar has been computed yet"
		if last.IsTable() {
			reason = "the last scalar is a table"
		} else if last != nil {
			reason = "the last scalar is missing"
		}
		return nil, fmt.Errorf("%w: %s", ErrPlaceholderUnresolved, reason)
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	out["formula"] = strings.ReplaceAll(formula, LastScalarPlaceholder, lit)
	return out, nil
}

// ------------------- Run -------------------

// Outcome is the result of running a plan.
type Outcome struct {
	RunID string
	Final State
	// Produced is the category of the last action that executed, or
	// CategoryUnknown when none did.
	Produced Category
	Metrics  model.RunMetrics
}

// Run executes plan in order. Recoverable failures skip the action; any other
// failure stops the run and is returned together with the partial outcome.
func (e *Executor) Run(runID string, plan model.ActionPlan) (*Outcome, error) {
	tracker := NewRunTracker(runID, len(plan.Actions), e.baseline.Len(), e.logger)
	out := &Outcome{RunID: runID, Produced: CategoryUnknown}
	state := State{}

	for i, action := range plan.Actions {
		kind, known := ParseKind(action.Function)
		category := CategoryUnknown
		if known {
			category = kind.Category()
		}
		step := model.StepMetrics{
			Index:     i,
			Function:  action.Function,
			Args:      action.Args,
			Category:  string(category),
			RowsIn:    e.Current(state).Len(),
			StartTime: time.Now(),
		}

		next, err := e.Step(state, i, action)
		step.Duration = time.Since(step.StartTime)
		switch {
		case err == nil:
			state = next
			out.Produced = category
			step.RowsOut = e.Current(state).Len()
			if category == CategoryReduce {
				step.ScalarRepr = state.LastScalar.String()
			}
			tracker.RecordExecuted(step)
		case IsRecoverable(err):
			step.RowsOut = step.RowsIn
			tracker.RecordSkipped(step, err)
		default:
			tracker.RecordFailed(step, err)
			out.Final = state
			out.Metrics = tracker.Finish(model.RunFailed, e.Current(state).Len())
			return out, err
		}
	}

	out.Final = state
	out.Metrics = tracker.Finish(model.RunCompleted, e.Current(state).Len())
	return out, nil
}

// Dataset returns the final dataset when the last executed action produced one.
func (o *Outcome) Dataset() (*Dataset, bool) {
	if o.Produced != CategoryTransform || o.Final.Snapshot == nil {
		return nil, false
	}
	return o.Final.Snapshot, true
}

// Scalar returns the final scalar when the last executed action produced one.
func (o *Outcome) Scalar() (*Scalar, bool) {
	if o.Produced != CategoryReduce || o.Final.LastScalar == nil {
		return nil, false
	}
	return o.Final.LastScalar, true
}

// Preview returns a bounded view of the final result.
func (o *Outcome) Preview(limit int) model.ResultPreview {
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	if d, ok := o.Dataset(); ok {
		return datasetPreview("dataset", d, limit)
	}
	if s, ok := o.Scalar(); ok {
		if s.IsTable() {
			return datasetPreview("table", s.Table, limit)
		}
		return model.ResultPreview{Kind: "scalar", Scalar: s.Value}
	}
	return model.ResultPreview{Kind: "none"}
}

func datasetPreview(kind string, d *Dataset, limit int) model.ResultPreview {
	head := d.Head(limit)
	rows := make([]map[string]interface{}, head.Len())
	for i := range rows {
		row := make(map[string]interface{}, len(head.columns))
		for _, c := range head.columns {
			v := head.Value(i, c)
			if t, ok := v.(time.Time); ok {
				v = utils.FormatValue(t)
			}
			row[c] = v
		}
		rows[i] = row
	}
	return model.ResultPreview{Kind: kind, Columns: d.Columns(), Rows: rows, TotalRows: d.Len()}
}

// ------------------- Runner -------------------

// RunStore persists run history.
type RunStore interface {
	CreateRun(ctx context.Context, runID string, spec model.RunSpec, started time.Time) error
	CompleteRun(ctx context.Context, metrics model.RunMetrics, preview model.ResultPreview) error
}

// RunResult is everything a caller gets back from Runner.Run.
type RunResult struct {
	RunID   string              `json:"run_id"`
	Status  string              `json:"status"`
	Error   string              `json:"error,omitempty"`
	Metrics model.RunMetrics    `json:"metrics"`
	Preview model.ResultPreview `json:"preview"`
	Export  *model.ExportResult `json:"export,omitempty"`
	Outcome *Outcome            `json:"-"`
}

// Runner executes run specs one at a time over a shared baseline and keeps
// history and exports for each run.
type Runner struct {
	mu       sync.Mutex
	baseline *Dataset
	store    RunStore
	outputs  *utils.OutputManager
	logger   *slog.Logger
}

// NewRunner creates a runner. store and outputs may be nil to disable
// history and exports.
func NewRunner(baseline *Dataset, store RunStore, outputs *utils.OutputManager, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{baseline: baseline, store: store, outputs: outputs, logger: logger}
}

// Baseline returns the dataset every run starts from.
func (r *Runner) Baseline() *Dataset { return r.baseline }

// Run executes spec under runID. The returned error is the run's fatal error,
// if any; the result is always populated.
func (r *Runner) Run(ctx context.Context, runID string, spec model.RunSpec) (*RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.logger.With("run_id", runID)
	logger.Info("starting run", "actions", len(spec.Actions))
	started := time.Now()

	if r.store != nil {
		if err := r.store.CreateRun(ctx, runID, spec, started); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	result := &RunResult{RunID: runID}
	outcome, runErr := NewExecutor(r.baseline, logger).Run(runID, spec.Plan())
	result.Outcome = outcome
	result.Metrics = outcome.Metrics
	result.Status = outcome.Metrics.Status
	result.Preview = outcome.Preview(spec.PreviewRows)
	if runErr != nil {
		result.Error = runErr.Error()
	}

	if runErr == nil && spec.Export != nil && spec.Export.File != "" {
		export, err := r.export(runID, outcome, spec.Export.File)
		if err != nil {
			logger.Error("export failed", "file", spec.Export.File, "error", err)
		}
		result.Export = export
	}

	if r.store != nil {
		if err := r.store.CompleteRun(ctx, result.Metrics, result.Preview); err != nil {
			return result, errors.Join(runErr, fmt.Errorf("failed to record run result: %w", err))
		}
	}
	return result, runErr
}

func (r *Runner) export(runID string, outcome *Outcome, file string) (*model.ExportResult, error) {
	if r.outputs == nil {
		return nil, fmt.Errorf("no output directory configured")
	}
	path, err := r.outputs.FilePath(runID, file)
	if err != nil {
		return nil, err
	}
	res := ExportOutcome(outcome, path)
	if !res.Success {
		return &res, errors.New(res.Error)
	}
	return &res, nil
}
