package app

import (
	"fmt"
	"log/slog"

	"go-action-pipeline/internal/config"
	"go-action-pipeline/internal/model"
	"go-action-pipeline/internal/pipeline"
	"go-action-pipeline/internal/store"
	"go-action-pipeline/pkg/utils"
)

// App is the wired runner shared by the CLI and the API server.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Runner  *pipeline.Runner
	Outputs *utils.OutputManager
	Store   *store.DB // nil when history is disabled
}

// New loads the baseline dataset and opens the history store described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	source := model.Source{
		Type:        cfg.Data.Type,
		Path:        cfg.Data.Path,
		TimeColumns: cfg.Data.TimeColumns,
		Validation: &model.ValidationRules{
			RequiredFields: cfg.Data.RequiredColumns,
			NumericFields:  cfg.Data.NumericColumns,
		},
	}
	baseline, err := pipeline.NewLoader(source, logger).Load()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Outputs: utils.NewOutputManager(cfg.Output.Dir),
	}

	var runStore pipeline.RunStore
	if cfg.Store.Enabled {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open run history %s: %w", cfg.Store.Path, err)
		}
		a.Store = db
		runStore = db
	}

	a.Runner = pipeline.NewRunner(baseline, runStore, a.Outputs, logger)
	logger.Info("baseline loaded",
		"path", cfg.Data.Path,
		"rows", baseline.Len(),
		"columns", len(baseline.Columns()),
		"history", cfg.Store.Enabled,
	)
	return a, nil
}

// Close releases the history store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
