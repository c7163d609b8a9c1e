package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-action-pipeline/internal/api"
	"go-action-pipeline/internal/api/handler"
	"go-action-pipeline/internal/app"
	"go-action-pipeline/internal/config"
	"go-action-pipeline/internal/logging"
	"go-action-pipeline/pkg/router"
	"go-action-pipeline/pkg/utils"
)

// @title Action Pipeline API
// @version 1.0
// @description Executes planner-emitted action lists against a manufacturing job dataset.
// @host localhost:8080
// @BasePath /api/v1
func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("configuration loading failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// keep the handler's history nil rather than a typed nil when the store is off
	var history handler.History
	if a.Store != nil {
		history = a.Store
	}

	r := router.New(logger)
	api.RegisterRoutes(r, handler.NewRunHandler(a.Runner, history, a.Outputs, logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Start(ctx, cfg.Server.Addr, utils.ParseDuration(cfg.Server.ShutdownTimeout, 5*time.Second)); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
