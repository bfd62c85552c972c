package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SignificanceMinor    = "MINOR"
	SignificanceModerate = "MODERATE"
	SignificanceMajor    = "MAJOR"
	SignificanceCritical = "CRITICAL"
)

// Delta is the quantified difference between two analyses of the same
// entity. Exactly one row exists per ordered (base, comparison) pair;
// recomputation overwrites it.
type Delta struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntityID             uuid.UUID `gorm:"type:uuid;not null;index" json:"entity_id"`
	BaseAnalysisID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_deltas_pair" json:"base_analysis_id"`
	ComparisonAnalysisID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_deltas_pair" json:"comparison_analysis_id"`

	OptimismDelta         float64 `gorm:"not null" json:"optimism_delta"`
	RiskDelta             float64 `gorm:"not null" json:"risk_delta"`
	UncertaintyDelta      float64 `gorm:"not null" json:"uncertainty_delta"`
	OverallSentimentDelta float64 `gorm:"not null" json:"overall_sentiment_delta"`

	ThemesAdded   datatypes.JSON `gorm:"type:jsonb" json:"themes_added"`
	ThemesRemoved datatypes.JSON `gorm:"type:jsonb" json:"themes_removed"`
	ThemesEvolved datatypes.JSON `gorm:"type:jsonb" json:"themes_evolved"`

	Significance string `gorm:"not null;index" json:"significance"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Delta) TableName() string { return "deltas" }

func (d *Delta) AddedTerms() []string   { return decodeTerms(d.ThemesAdded) }
func (d *Delta) RemovedTerms() []string { return decodeTerms(d.ThemesRemoved) }

// EvolvedWeights maps each overlapping term whose weight moved past the
// epsilon to its signed weight change.
func (d *Delta) EvolvedWeights() map[string]float64 {
	if len(d.ThemesEvolved) == 0 {
		return nil
	}
	var out map[string]float64
	if err := json.Unmarshal(d.ThemesEvolved, &out); err != nil {
		return nil
	}
	return out
}

func decodeTerms(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
