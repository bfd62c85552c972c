package app

import (
	"github.com/fnaplatform/fna-backend/internal/http/handlers"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
)

type Handlers struct {
	Report *handlers.ReportHandler
	Batch  *handlers.BatchHandler
	Delta  *handlers.DeltaHandler
	Alert  *handlers.AlertHandler
	Search *handlers.SearchHandler
	Trend  *handlers.TrendHandler
	Health *handlers.HealthHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Report: handlers.NewReportHandler(serviceset.Lifecycle),
		Batch:  handlers.NewBatchHandler(serviceset.Batch),
		Delta:  handlers.NewDeltaHandler(serviceset.Delta, serviceset.Alert),
		Alert:  handlers.NewAlertHandler(serviceset.Alert),
		Search: handlers.NewSearchHandler(serviceset.Search),
		Trend:  handlers.NewTrendHandler(serviceset.Trend),
		Health: handlers.NewHealthHandler(),
	}
}
