package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BatchStatusPending            = "PENDING"
	BatchStatusProcessing         = "PROCESSING"
	BatchStatusCompleted          = "COMPLETED"
	BatchStatusFailed             = "FAILED"
	BatchStatusPartiallyCompleted = "PARTIALLY_COMPLETED"
)

// BatchJob tracks one user-submitted set of reports processed together.
// Per-member outcomes live in the jsonb status map; the row itself is the
// queue entry, so no external broker is involved.
type BatchJob struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	ReportIDs       datatypes.JSON `gorm:"type:jsonb;not null" json:"report_ids"`
	PerReportStatus datatypes.JSON `gorm:"type:jsonb" json:"per_report_status"`

	Status     string `gorm:"not null;default:'PENDING';index" json:"status"`
	Successful int    `gorm:"not null;default:0" json:"successful"`
	Failed     int    `gorm:"not null;default:0" json:"failed"`

	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (BatchJob) TableName() string { return "batch_jobs" }

func (b *BatchJob) Members() []uuid.UUID {
	if len(b.ReportIDs) == 0 {
		return nil
	}
	var out []uuid.UUID
	if err := json.Unmarshal(b.ReportIDs, &out); err != nil {
		return nil
	}
	return out
}

func (b *BatchJob) SetMembers(ids []uuid.UUID) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	b.ReportIDs = datatypes.JSON(raw)
	return nil
}

// StatusMap returns a copy of the per-report status map, never nil.
func (b *BatchJob) StatusMap() map[string]string {
	out := map[string]string{}
	if len(b.PerReportStatus) == 0 {
		return out
	}
	_ = json.Unmarshal(b.PerReportStatus, &out)
	return out
}

func (b *BatchJob) SetStatusMap(m map[string]string) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	b.PerReportStatus = datatypes.JSON(raw)
	return nil
}
