package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Analysis is one sentiment-inference result for one report. Rows are
// immutable once written; reprocessing a report inserts a new row that
// supersedes the previous one (latest by created_at wins).
type Analysis struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID uuid.UUID `gorm:"type:uuid;not null;index" json:"report_id"`
	Report   *Report   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ReportID;references:ID" json:"report,omitempty"`

	OptimismScore         float64 `gorm:"not null" json:"optimism_score"`
	OptimismConfidence    float64 `gorm:"not null" json:"optimism_confidence"`
	RiskScore             float64 `gorm:"not null" json:"risk_score"`
	RiskConfidence        float64 `gorm:"not null" json:"risk_confidence"`
	UncertaintyScore      float64 `gorm:"not null" json:"uncertainty_score"`
	UncertaintyConfidence float64 `gorm:"not null" json:"uncertainty_confidence"`

	KeyThemes         datatypes.JSON `gorm:"type:jsonb" json:"key_themes"`
	RiskIndicators    datatypes.JSON `gorm:"type:jsonb" json:"risk_indicators"`
	NarrativeSections datatypes.JSON `gorm:"type:jsonb" json:"narrative_sections"`

	ModelVersion          string `gorm:"column:model_version" json:"model_version"`
	ProcessingTimeSeconds int    `gorm:"column:processing_time_seconds" json:"processing_time_seconds"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Analysis) TableName() string { return "analyses" }

// ScoresValid reports whether every score and confidence sits in [0,1].
func (a *Analysis) ScoresValid() bool {
	for _, v := range []float64{
		a.OptimismScore, a.OptimismConfidence,
		a.RiskScore, a.RiskConfidence,
		a.UncertaintyScore, a.UncertaintyConfidence,
	} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func (a *Analysis) Themes() ([]Theme, error) {
	if len(a.KeyThemes) == 0 {
		return nil, nil
	}
	var out []Theme
	if err := json.Unmarshal(a.KeyThemes, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Analysis) SetThemes(themes []Theme) error {
	raw, err := json.Marshal(themes)
	if err != nil {
		return err
	}
	a.KeyThemes = datatypes.JSON(raw)
	return nil
}

func (a *Analysis) SetRiskIndicators(indicators []RiskIndicator) error {
	raw, err := json.Marshal(indicators)
	if err != nil {
		return err
	}
	a.RiskIndicators = datatypes.JSON(raw)
	return nil
}
