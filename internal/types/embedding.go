package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Embedding is one fixed-dimension vector for one chunk of one analysis's
// narrative text. Rows are written once and never updated.
type Embedding struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AnalysisID uuid.UUID `gorm:"type:uuid;not null;index:idx_embeddings_analysis_section" json:"analysis_id"`
	Analysis   *Analysis `gorm:"constraint:OnDelete:CASCADE;foreignKey:AnalysisID;references:ID" json:"analysis,omitempty"`
	EntityID   uuid.UUID `gorm:"type:uuid;not null;index" json:"entity_id"`

	SectionType string `gorm:"not null;index:idx_embeddings_analysis_section" json:"section_type"`
	ChunkIndex  int    `gorm:"not null" json:"chunk_index"`

	Vector     datatypes.JSON `gorm:"type:jsonb;not null" json:"vector"`
	SourceText string         `gorm:"column:source_text" json:"source_text"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Embedding) TableName() string { return "embeddings" }

func (e *Embedding) Values() ([]float32, error) {
	if len(e.Vector) == 0 {
		return nil, nil
	}
	var out []float32
	if err := json.Unmarshal(e.Vector, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedding) SetValues(values []float32) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	e.Vector = datatypes.JSON(raw)
	return nil
}
