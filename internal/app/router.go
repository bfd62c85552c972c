package app

import (
	"github.com/gin-gonic/gin"

	fnahttp "github.com/fnaplatform/fna-backend/internal/http"
)

func wireRouter(handlerset Handlers) *gin.Engine {
	return fnahttp.NewRouter(fnahttp.RouterConfig{
		ReportHandler: handlerset.Report,
		BatchHandler:  handlerset.Batch,
		DeltaHandler:  handlerset.Delta,
		AlertHandler:  handlerset.Alert,
		SearchHandler: handlerset.Search,
		TrendHandler:  handlerset.Trend,
		HealthHandler: handlerset.Health,
	})
}
