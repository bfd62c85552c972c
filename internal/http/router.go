package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/fnaplatform/fna-backend/internal/http/handlers"
	httpMW "github.com/fnaplatform/fna-backend/internal/http/middleware"
)

type RouterConfig struct {
	ReportHandler *httpH.ReportHandler
	BatchHandler  *httpH.BatchHandler
	DeltaHandler  *httpH.DeltaHandler
	AlertHandler  *httpH.AlertHandler
	SearchHandler *httpH.SearchHandler
	TrendHandler  *httpH.TrendHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	{
		// Reports
		if cfg.ReportHandler != nil {
			api.POST("/reports/:id/process", cfg.ReportHandler.Process)
			api.POST("/reports/:id/requeue", cfg.ReportHandler.Requeue)
		}

		// Batches
		if cfg.BatchHandler != nil {
			api.POST("/batches", cfg.BatchHandler.Submit)
			api.GET("/batches/:id", cfg.BatchHandler.GetStatus)
		}

		// Deltas
		if cfg.DeltaHandler != nil {
			api.POST("/deltas/compare", cfg.DeltaHandler.Compare)
			api.GET("/deltas/:id", cfg.DeltaHandler.Get)
		}

		// Alerts
		if cfg.AlertHandler != nil {
			api.POST("/alerts/preferences", cfg.AlertHandler.SetPreference)
			api.GET("/alerts", cfg.AlertHandler.List)
			api.POST("/alerts/:id/read", cfg.AlertHandler.MarkRead)
		}

		// Search
		if cfg.SearchHandler != nil {
			api.GET("/search/similar", cfg.SearchHandler.Similar)
		}

		// Trends
		if cfg.TrendHandler != nil {
			api.GET("/entities/:id/trends", cfg.TrendHandler.Trends)
		}
	}

	return r
}
