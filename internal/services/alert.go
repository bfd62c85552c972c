package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
	"github.com/fnaplatform/fna-backend/internal/types"
)

// Alert evaluates computed deltas against user thresholds and emits at most
// one alert per (user, delta, type). The notifier is optional; evaluation
// results never depend on whether fan-out is configured.
type Alert struct {
	log      *logger.Logger
	alerts   repos.AlertRepo
	prefs    repos.AlertPreferenceRepo
	deltas   repos.DeltaRepo
	analyses repos.AnalysisRepo
	notifier Notifier
}

func NewAlert(
	log *logger.Logger,
	alerts repos.AlertRepo,
	prefs repos.AlertPreferenceRepo,
	deltas repos.DeltaRepo,
	analyses repos.AnalysisRepo,
	notifier Notifier,
) *Alert {
	return &Alert{
		log:      log.With("service", "Alert"),
		alerts:   alerts,
		prefs:    prefs,
		deltas:   deltas,
		analyses: analyses,
		notifier: notifier,
	}
}

// Evaluate checks every preference registered for the delta's entity and
// emits the alerts whose actual change exceeds the user's threshold.
// Re-evaluating the same delta is idempotent: existing alerts are left
// alone and only newly created ones are returned.
func (s *Alert) Evaluate(ctx context.Context, deltaID uuid.UUID) ([]*types.Alert, error) {
	delta, err := s.deltas.GetByID(ctx, nil, deltaID)
	if err != nil {
		return nil, err
	}
	if delta == nil {
		return nil, fnaerr.NotFound("delta", deltaID)
	}

	prefs, err := s.prefs.ListByEntity(ctx, nil, delta.EntityID)
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 {
		return nil, nil
	}

	baseThemeCount, err := s.baseThemeCount(ctx, delta)
	if err != nil {
		return nil, err
	}

	var emitted []*types.Alert
	for _, pref := range prefs {
		actual := actualChange(delta, pref.AlertType, baseThemeCount)
		if actual <= pref.ThresholdPercentage {
			continue
		}
		alert := &types.Alert{
			ID:                     uuid.New(),
			UserID:                 pref.UserID,
			DeltaID:                delta.ID,
			EntityID:               delta.EntityID,
			AlertType:              pref.AlertType,
			ThresholdPercentage:    pref.ThresholdPercentage,
			ActualChangePercentage: actual,
			Message:                alertMessage(pref.AlertType, actual, delta.Significance),
		}
		created, err := s.alerts.CreateIfAbsent(ctx, nil, alert)
		if err != nil {
			return nil, err
		}
		if !created {
			continue
		}
		emitted = append(emitted, alert)
		if s.notifier != nil {
			if err := s.notifier.PublishAlert(ctx, alert); err != nil {
				s.log.Warn("alert publish", "alert_id", alert.ID, "error", err)
			}
		}
	}
	return emitted, nil
}

// baseThemeCount resolves the size of the base analysis's theme set, which
// normalizes THEME_CHANGE. A missing base analysis degrades to zero rather
// than failing the whole evaluation.
func (s *Alert) baseThemeCount(ctx context.Context, delta *types.Delta) (int, error) {
	base, err := s.analyses.GetByID(ctx, nil, delta.BaseAnalysisID)
	if err != nil {
		return 0, err
	}
	if base == nil {
		return 0, nil
	}
	themes, err := base.Themes()
	if err != nil {
		return 0, nil
	}
	return len(types.ThemeTerms(themes)), nil
}

// actualChange computes the percentage a delta moved along one alert
// dimension.
func actualChange(delta *types.Delta, alertType string, baseThemeCount int) float64 {
	switch alertType {
	case types.AlertTypeSentimentShift:
		return math.Abs(delta.OverallSentimentDelta) * 100
	case types.AlertTypeRiskIncrease:
		return math.Max(delta.RiskDelta, 0) * 100
	case types.AlertTypeThemeChange:
		churn := len(delta.AddedTerms()) + len(delta.RemovedTerms())
		div := baseThemeCount
		if div < 1 {
			div = 1
		}
		return float64(churn) / float64(div) * 100
	default:
		return 0
	}
}

func alertMessage(alertType string, actual float64, significance string) string {
	switch alertType {
	case types.AlertTypeSentimentShift:
		return fmt.Sprintf("Overall sentiment shifted %.1f%% (%s)", actual, significance)
	case types.AlertTypeRiskIncrease:
		return fmt.Sprintf("Risk perception increased %.1f%% (%s)", actual, significance)
	case types.AlertTypeThemeChange:
		return fmt.Sprintf("Narrative themes churned %.1f%% (%s)", actual, significance)
	default:
		return fmt.Sprintf("Narrative change of %.1f%% (%s)", actual, significance)
	}
}

// SetPreference upserts one user's threshold for one alert type on one
// entity. Thresholds live in [5, 50] percent.
func (s *Alert) SetPreference(ctx context.Context, userID, entityID uuid.UUID, alertType string, threshold float64) (*types.AlertPreference, error) {
	if !types.ValidAlertType(alertType) {
		return nil, fnaerr.Validation("alert_type", "unknown alert type %q", alertType)
	}
	if threshold < types.AlertThresholdMin || threshold > types.AlertThresholdMax {
		return nil, fnaerr.Validation("threshold_percentage", "threshold %.1f outside [%.0f, %.0f]",
			threshold, types.AlertThresholdMin, types.AlertThresholdMax)
	}
	pref := &types.AlertPreference{
		ID:                  uuid.New(),
		UserID:              userID,
		EntityID:            entityID,
		AlertType:           alertType,
		ThresholdPercentage: threshold,
	}
	if err := s.prefs.Upsert(ctx, nil, pref); err != nil {
		return nil, err
	}
	return pref, nil
}

// List returns the user's alerts, newest first.
func (s *Alert) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*types.Alert, error) {
	return s.alerts.ListByUser(ctx, nil, userID, unreadOnly, limit, offset)
}

// MarkRead flags one of the user's alerts as read.
func (s *Alert) MarkRead(ctx context.Context, userID, alertID uuid.UUID) error {
	ok, err := s.alerts.MarkRead(ctx, nil, userID, alertID)
	if err != nil {
		return err
	}
	if !ok {
		return fnaerr.NotFound("alert", alertID)
	}
	return nil
}
