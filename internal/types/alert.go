package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	AlertTypeSentimentShift = "SENTIMENT_SHIFT"
	AlertTypeRiskIncrease   = "RISK_INCREASE"
	AlertTypeThemeChange    = "THEME_CHANGE"
)

func ValidAlertType(t string) bool {
	switch t {
	case AlertTypeSentimentShift, AlertTypeRiskIncrease, AlertTypeThemeChange:
		return true
	default:
		return false
	}
}

// Threshold bounds for alert preferences, in percent.
const (
	AlertThresholdMin = 5.0
	AlertThresholdMax = 50.0
)

// AlertPreference is one user's threshold for one alert type on one entity.
type AlertPreference struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_alert_prefs_key" json:"user_id"`
	EntityID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_alert_prefs_key;index" json:"entity_id"`
	AlertType           string    `gorm:"not null;uniqueIndex:idx_alert_prefs_key" json:"alert_type"`
	ThresholdPercentage float64   `gorm:"not null" json:"threshold_percentage"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (AlertPreference) TableName() string { return "alert_preferences" }

// Alert is one emitted notification. The unique index makes evaluation
// idempotent per (delta, type, user).
type Alert struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_alerts_user_read;uniqueIndex:idx_alerts_delta_type" json:"user_id"`
	DeltaID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_alerts_delta_type" json:"delta_id"`
	EntityID uuid.UUID `gorm:"type:uuid;not null;index" json:"entity_id"`

	AlertType              string  `gorm:"not null;uniqueIndex:idx_alerts_delta_type" json:"alert_type"`
	ThresholdPercentage    float64 `gorm:"not null" json:"threshold_percentage"`
	ActualChangePercentage float64 `gorm:"not null" json:"actual_change_percentage"`
	Message                string  `gorm:"not null" json:"message"`
	IsRead                 bool    `gorm:"not null;default:false;index:idx_alerts_user_read" json:"is_read"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Alert) TableName() string { return "alerts" }
