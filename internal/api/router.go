package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-action-pipeline/docs"
	"go-action-pipeline/internal/api/handler"
	"go-action-pipeline/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.RunHandler) {
	r.GET("/api/v1/health", h.Health)
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/steps", h.GetRunSteps)
	r.GET("/api/v1/runs/*/errors", h.GetRunErrors)
	r.GET("/api/v1/runs/*/files", h.GetRunFiles)
	r.GET("/api/v1/runs/*", h.GetRun)
	r.GET("/api/v1/download/*/*", h.DownloadFile)

	r.Mount("/swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
