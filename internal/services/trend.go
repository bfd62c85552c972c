package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
)

// TrendPoint is one completed analysis on an entity's timeline.
type TrendPoint struct {
	AnalysisID  uuid.UUID `json:"analysis_id"`
	ReportID    uuid.UUID `json:"report_id"`
	FilingDate  time.Time `json:"filing_date"`
	Optimism    float64   `json:"optimism"`
	Risk        float64   `json:"risk"`
	Uncertainty float64   `json:"uncertainty"`
}

// PeriodDelta is the score movement between two consecutive filings.
type PeriodDelta struct {
	FromAnalysisID   uuid.UUID `json:"from_analysis_id"`
	ToAnalysisID     uuid.UUID `json:"to_analysis_id"`
	OptimismDelta    float64   `json:"optimism_delta"`
	RiskDelta        float64   `json:"risk_delta"`
	UncertaintyDelta float64   `json:"uncertainty_delta"`
	OverallDelta     float64   `json:"overall_delta"`
	Significance     string    `json:"significance"`
}

// RollingPoint carries windowed averages aligned with the timeline.
type RollingPoint struct {
	AnalysisID  uuid.UUID `json:"analysis_id"`
	Optimism    float64   `json:"optimism"`
	Risk        float64   `json:"risk"`
	Uncertainty float64   `json:"uncertainty"`
}

type TrendReport struct {
	EntityID        uuid.UUID      `json:"entity_id"`
	Points          []TrendPoint   `json:"points"`
	PeriodDeltas    []PeriodDelta  `json:"period_deltas"`
	RollingAverages []RollingPoint `json:"rolling_averages"`
	Window          int            `json:"window"`
}

// Trend summarizes how an entity's narrative scores move across filings.
type Trend struct {
	log      *logger.Logger
	analyses repos.AnalysisRepo
}

func NewTrend(log *logger.Logger, analyses repos.AnalysisRepo) *Trend {
	return &Trend{
		log:      log.With("service", "Trend"),
		analyses: analyses,
	}
}

// Timeline returns the entity's completed analyses in filing order.
func (s *Trend) Timeline(ctx context.Context, entityID uuid.UUID) ([]TrendPoint, error) {
	analyses, err := s.analyses.ListLatestByEntity(ctx, nil, entityID)
	if err != nil {
		return nil, err
	}
	points := make([]TrendPoint, 0, len(analyses))
	for _, a := range analyses {
		p := TrendPoint{
			AnalysisID:  a.ID,
			ReportID:    a.ReportID,
			Optimism:    a.OptimismScore,
			Risk:        a.RiskScore,
			Uncertainty: a.UncertaintyScore,
		}
		if a.Report != nil {
			p.FilingDate = a.Report.FilingDate
		}
		points = append(points, p)
	}
	return points, nil
}

// Trends builds the full report: timeline, period-over-period deltas, and
// rolling averages over the given window (default 4 filings).
func (s *Trend) Trends(ctx context.Context, entityID uuid.UUID, window int) (*TrendReport, error) {
	if window < 0 {
		return nil, fnaerr.Validation("window", "window must be positive")
	}
	if window == 0 {
		window = 4
	}
	points, err := s.Timeline(ctx, entityID)
	if err != nil {
		return nil, err
	}

	deltas := make([]PeriodDelta, 0, max(0, len(points)-1))
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		opt := cur.Optimism - prev.Optimism
		risk := cur.Risk - prev.Risk
		unc := cur.Uncertainty - prev.Uncertainty
		deltas = append(deltas, PeriodDelta{
			FromAnalysisID:   prev.AnalysisID,
			ToAnalysisID:     cur.AnalysisID,
			OptimismDelta:    opt,
			RiskDelta:        risk,
			UncertaintyDelta: unc,
			OverallDelta:     (opt - risk - unc) / 3,
			Significance:     significanceFor(opt, risk, unc),
		})
	}

	rolling := make([]RollingPoint, 0, len(points))
	for i := range points {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var opt, risk, unc float64
		n := float64(i - start + 1)
		for _, p := range points[start : i+1] {
			opt += p.Optimism
			risk += p.Risk
			unc += p.Uncertainty
		}
		rolling = append(rolling, RollingPoint{
			AnalysisID:  points[i].AnalysisID,
			Optimism:    opt / n,
			Risk:        risk / n,
			Uncertainty: unc / n,
		})
	}

	return &TrendReport{
		EntityID:        entityID,
		Points:          points,
		PeriodDeltas:    deltas,
		RollingAverages: rolling,
		Window:          window,
	}, nil
}
