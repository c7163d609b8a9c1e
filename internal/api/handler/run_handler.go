package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"go-action-pipeline/internal/model"
	"go-action-pipeline/internal/pipeline"
	"go-action-pipeline/internal/store"
	"go-action-pipeline/pkg/router"
	"go-action-pipeline/pkg/utils"
)

const maxPlanBytes = 1 << 20

var contentTypes = map[string]string{
	"csv":     "text/csv",
	"json":    "application/json",
	"unknown": "application/octet-stream",
}

// History is the read side of the run store.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
	GetRun(ctx context.Context, runID string) (*store.RunRecord, error)
	GetSteps(ctx context.Context, runID string) ([]model.StepMetrics, error)
	GetErrors(ctx context.Context, runID string) ([]model.ErrorDetail, error)
}

// RunHandler serves the run endpoints. history may be nil when the store is
// disabled; the history endpoints then answer 503.
type RunHandler struct {
	runner  *pipeline.Runner
	history History
	outputs *utils.OutputManager
	logger  *slog.Logger
}

func NewRunHandler(runner *pipeline.Runner, history History, outputs *utils.OutputManager, logger *slog.Logger) *RunHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{runner: runner, history: history, outputs: outputs, logger: logger}
}

type createRunResponse struct {
	*pipeline.RunResult
	DownloadURL string `json:"download_url,omitempty"`
}

// CreateRun executes an action plan against the baseline dataset
// @Summary Execute an action plan
// @Description Run the given actions in order against the loaded dataset and return the final result. The body may be JSON or YAML.
// @Tags runs
// @Accept json
// @Produce json
// @Param plan body model.RunSpec true "Action plan"
// @Success 200 {object} createRunResponse "Run finished (check status for failed runs)"
// @Failure 400 {object} map[string]string "Invalid action plan"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /runs [post]
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPlanBytes))
	if err != nil {
		router.Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	spec, err := pipeline.ParseRunSpec(body)
	if err == nil {
		err = pipeline.ValidateRunSpec(spec)
	}
	if err != nil {
		router.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := uuid.New().String()
	result, err := h.runner.Run(r.Context(), runID, spec)
	if result == nil {
		h.logger.Error("run could not start", "run_id", runID, "error", err)
		router.Error(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	if err != nil {
		h.logger.Warn("run finished with error", "run_id", runID, "error", err)
	}

	resp := createRunResponse{RunResult: result}
	if result.Export != nil && result.Export.Success && h.outputs != nil {
		resp.DownloadURL = h.outputs.DownloadURL(runID, result.Export.Path)
	}
	router.JSON(w, http.StatusOK, resp)
}

// ListRuns returns run history
// @Summary List runs
// @Description List recorded runs, newest first
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs" default(50)
// @Success 200 {object} map[string]interface{} "Runs"
// @Failure 503 {object} map[string]string "History disabled"
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.history.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		router.Error(w, http.StatusInternalServerError, "failed to fetch runs")
		return
	}
	router.JSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"limit": limit,
	})
}

// GetRun returns one run
// @Summary Get run
// @Description Retrieve the status, counters and result preview of a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} store.RunRecord "Run details"
// @Failure 404 {object} map[string]string "Run not found"
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}
	runID := router.Param(r, 0)
	run, err := h.history.GetRun(r.Context(), runID)
	if err != nil {
		h.lookupFailed(w, runID, err)
		return
	}
	router.JSON(w, http.StatusOK, run)
}

// GetRunSteps returns the per-action trace of a run
// @Summary Get run steps
// @Description Retrieve what happened to every action of a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run steps"
// @Failure 404 {object} map[string]string "Run not found"
// @Router /runs/{id}/steps [get]
func (h *RunHandler) GetRunSteps(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}
	runID := router.Param(r, 0)
	steps, err := h.history.GetSteps(r.Context(), runID)
	if err != nil {
		h.lookupFailed(w, runID, err)
		return
	}
	router.JSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"steps":  steps,
		"count":  len(steps),
	})
}

// GetRunErrors returns the skipped and fatal errors of a run
// @Summary Get run errors
// @Description Retrieve the recoverable and fatal errors recorded for a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 404 {object} map[string]string "Run not found"
// @Router /runs/{id}/errors [get]
func (h *RunHandler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}
	runID := router.Param(r, 0)
	errs, err := h.history.GetErrors(r.Context(), runID)
	if err != nil {
		h.lookupFailed(w, runID, err)
		return
	}
	router.JSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"errors": errs,
		"count":  len(errs),
	})
}

// GetRunFiles lists the files a run exported
// @Summary List run files
// @Description List the export files written by a run, with download links
// @Tags files
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run files"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /runs/{id}/files [get]
func (h *RunHandler) GetRunFiles(w http.ResponseWriter, r *http.Request) {
	runID := router.Param(r, 0)
	files := []map[string]string{}
	if h.outputs != nil {
		names, err := h.outputs.ListFiles(runID)
		if err != nil {
			h.logger.Error("failed to list run files", "run_id", runID, "error", err)
			router.Error(w, http.StatusInternalServerError, "failed to list files")
			return
		}
		for _, name := range names {
			files = append(files, map[string]string{
				"name": name,
				"type": h.outputs.FileType(name),
				"url":  h.outputs.DownloadURL(runID, name),
			})
		}
	}
	router.JSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"files":  files,
		"count":  len(files),
	})
}

// DownloadFile serves an exported result file
// @Summary Download file
// @Description Download a file exported by a run
// @Tags files
// @Produce application/octet-stream
// @Param runID path string true "Run ID"
// @Param filename path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 404 {object} map[string]string "File not found"
// @Router /download/{runID}/{filename} [get]
func (h *RunHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	runID, fileName := router.Param(r, 0), router.Param(r, 1)
	if h.outputs == nil {
		router.Error(w, http.StatusNotFound, "file not found")
		return
	}
	path, err := h.outputs.ExistingFile(runID, fileName)
	if err != nil {
		router.Error(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Type", contentTypes[h.outputs.FileType(fileName)])
	http.ServeFile(w, r, path)
}

// Health reports liveness and the size of the loaded dataset
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Service is up"
// @Router /health [get]
func (h *RunHandler) Health(w http.ResponseWriter, _ *http.Request) {
	baseline := h.runner.Baseline()
	router.JSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"baseline_rows": baseline.Len(),
		"columns":       baseline.Columns(),
		"history":       h.history != nil,
	})
}

func (h *RunHandler) historyEnabled(w http.ResponseWriter) bool {
	if h.history == nil {
		router.Error(w, http.StatusServiceUnavailable, "run history is disabled")
		return false
	}
	return true
}

func (h *RunHandler) lookupFailed(w http.ResponseWriter, runID string, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		router.Error(w, http.StatusNotFound, "run not found")
		return
	}
	h.logger.Error("failed to read run history", "run_id", runID, "error", err)
	router.Error(w, http.StatusInternalServerError, "failed to read run history")
}
