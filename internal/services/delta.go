package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
	"github.com/fnaplatform/fna-backend/internal/types"
)

// ThemeWeightEpsilon is the minimum absolute weight movement for an
// overlapping theme to count as evolved.
const ThemeWeightEpsilon = 0.1

// Delta quantifies narrative change between two analyses of the same
// entity. Comparison is directional: base must be the chronologically
// earlier filing.
type Delta struct {
	log      *logger.Logger
	deltas   repos.DeltaRepo
	analyses repos.AnalysisRepo
}

func NewDelta(log *logger.Logger, deltas repos.DeltaRepo, analyses repos.AnalysisRepo) *Delta {
	return &Delta{
		log:      log.With("service", "Delta"),
		deltas:   deltas,
		analyses: analyses,
	}
}

// Compare computes (or recomputes) the delta for an ordered analysis pair.
// The result is upserted so re-comparing the same pair is idempotent.
func (s *Delta) Compare(ctx context.Context, baseAnalysisID, comparisonAnalysisID uuid.UUID) (*types.Delta, error) {
	if baseAnalysisID == comparisonAnalysisID {
		return nil, fnaerr.ComparisonInvalid("an analysis cannot be compared with itself")
	}
	base, err := s.analyses.GetByIDWithReport(ctx, nil, baseAnalysisID)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fnaerr.NotFound("analysis", baseAnalysisID)
	}
	comp, err := s.analyses.GetByIDWithReport(ctx, nil, comparisonAnalysisID)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, fnaerr.NotFound("analysis", comparisonAnalysisID)
	}
	if base.Report == nil || comp.Report == nil {
		return nil, fnaerr.ComparisonInvalid("analysis is missing its report")
	}
	if base.Report.EntityID != comp.Report.EntityID {
		return nil, fnaerr.ComparisonInvalid("analyses belong to different entities")
	}
	if !base.Report.FilingDate.Before(comp.Report.FilingDate) {
		return nil, fnaerr.ComparisonInvalid("base filing %s is not earlier than comparison filing %s",
			base.Report.FilingDate.Format("2006-01-02"), comp.Report.FilingDate.Format("2006-01-02"))
	}

	optimism := comp.OptimismScore - base.OptimismScore
	risk := comp.RiskScore - base.RiskScore
	uncertainty := comp.UncertaintyScore - base.UncertaintyScore
	overall := (optimism - risk - uncertainty) / 3

	baseThemes, err := base.Themes()
	if err != nil {
		return nil, fmt.Errorf("decode base themes: %w", err)
	}
	compThemes, err := comp.Themes()
	if err != nil {
		return nil, fmt.Errorf("decode comparison themes: %w", err)
	}
	added, removed, evolved := diffThemes(baseThemes, compThemes)

	delta := &types.Delta{
		ID:                    uuid.New(),
		EntityID:              base.Report.EntityID,
		BaseAnalysisID:        baseAnalysisID,
		ComparisonAnalysisID:  comparisonAnalysisID,
		OptimismDelta:         optimism,
		RiskDelta:             risk,
		UncertaintyDelta:      uncertainty,
		OverallSentimentDelta: overall,
		Significance:          significanceFor(optimism, risk, uncertainty),
	}
	if delta.ThemesAdded, err = encodeTerms(added); err != nil {
		return nil, err
	}
	if delta.ThemesRemoved, err = encodeTerms(removed); err != nil {
		return nil, err
	}
	if len(evolved) > 0 {
		raw, err := json.Marshal(evolved)
		if err != nil {
			return nil, err
		}
		delta.ThemesEvolved = datatypes.JSON(raw)
	}

	if err := s.deltas.Upsert(ctx, nil, delta); err != nil {
		return nil, err
	}
	stored, err := s.deltas.GetByPair(ctx, nil, baseAnalysisID, comparisonAnalysisID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return delta, nil
	}
	return stored, nil
}

func (s *Delta) GetByID(ctx context.Context, deltaID uuid.UUID) (*types.Delta, error) {
	delta, err := s.deltas.GetByID(ctx, nil, deltaID)
	if err != nil {
		return nil, err
	}
	if delta == nil {
		return nil, fnaerr.NotFound("delta", deltaID)
	}
	return delta, nil
}

// significanceFor grades the largest per-dimension move, in percentage
// points of score.
func significanceFor(deltas ...float64) string {
	var maxAbs float64
	for _, d := range deltas {
		if abs := math.Abs(d); abs > maxAbs {
			maxAbs = abs
		}
	}
	switch pct := maxAbs * 100; {
	case pct < 10:
		return types.SignificanceMinor
	case pct < 20:
		return types.SignificanceModerate
	case pct <= 35:
		return types.SignificanceMajor
	default:
		return types.SignificanceCritical
	}
}

// diffThemes partitions theme terms into added, removed, and evolved.
// Evolved needs a weight on both sides and a move past the epsilon; bare
// terms only ever add or remove.
func diffThemes(base, comp []types.Theme) (added, removed []string, evolved map[string]float64) {
	baseWeights := types.ThemeWeights(base)
	compWeights := types.ThemeWeights(comp)
	baseTerms := types.ThemeTerms(base)
	compTerms := types.ThemeTerms(comp)

	for term := range compTerms {
		if !baseTerms[term] {
			added = append(added, term)
		}
	}
	for term := range baseTerms {
		if !compTerms[term] {
			removed = append(removed, term)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	for term, bw := range baseWeights {
		cw, ok := compWeights[term]
		if !ok {
			continue
		}
		if change := cw - bw; math.Abs(change) > ThemeWeightEpsilon {
			if evolved == nil {
				evolved = map[string]float64{}
			}
			evolved[term] = change
		}
	}
	return added, removed, evolved
}

func encodeTerms(terms []string) (datatypes.JSON, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(terms)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
