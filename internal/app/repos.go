package app

import (
	"gorm.io/gorm"

	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
)

type Repos struct {
	Report          repos.ReportRepo
	Analysis        repos.AnalysisRepo
	Embedding       repos.EmbeddingRepo
	Delta           repos.DeltaRepo
	BatchJob        repos.BatchJobRepo
	Alert           repos.AlertRepo
	AlertPreference repos.AlertPreferenceRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Report:          repos.NewReportRepo(db, log),
		Analysis:        repos.NewAnalysisRepo(db, log),
		Embedding:       repos.NewEmbeddingRepo(db, log),
		Delta:           repos.NewDeltaRepo(db, log),
		BatchJob:        repos.NewBatchJobRepo(db, log),
		Alert:           repos.NewAlertRepo(db, log),
		AlertPreference: repos.NewAlertPreferenceRepo(db, log),
	}
}
