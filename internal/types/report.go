package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReportStatusPending    = "PENDING"
	ReportStatusProcessing = "PROCESSING"
	ReportStatusCompleted  = "COMPLETED"
	ReportStatusFailed     = "FAILED"
)

// ReportStatusTerminal reports whether a status is terminal for batch
// aggregation purposes.
func ReportStatusTerminal(status string) bool {
	return status == ReportStatusCompleted || status == ReportStatusFailed
}

// Report is one ingested filing for an entity. Status is owned by the
// lifecycle service and only changes through its transitions.
type Report struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EntityID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_reports_entity_filing" json:"entity_id"`
	FilingDate  time.Time  `gorm:"not null;index:idx_reports_entity_filing" json:"filing_date"`
	Status      string     `gorm:"not null;default:'PENDING';index" json:"status"`
	LastError   string     `gorm:"column:last_error" json:"last_error,omitempty"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Report) TableName() string { return "reports" }
