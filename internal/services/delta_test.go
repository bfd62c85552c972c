package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/types"
)

func newDeltaService(env *testEnv) *Delta {
	return NewDelta(env.log, env.deltas, env.analyses)
}

func seedPair(t *testing.T, env *testEnv, entityID uuid.UUID, baseScores, compScores [3]float64, baseThemes, compThemes []types.Theme) (*types.Analysis, *types.Analysis) {
	t.Helper()
	baseReport := env.seedReport(t, entityID, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), types.ReportStatusCompleted)
	compReport := env.seedReport(t, entityID, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), types.ReportStatusCompleted)
	base := env.seedAnalysis(t, baseReport.ID, baseScores[0], baseScores[1], baseScores[2], baseThemes)
	comp := env.seedAnalysis(t, compReport.ID, compScores[0], compScores[1], compScores[2], compThemes)
	return base, comp
}

func TestCompareWorkedExample(t *testing.T) {
	env := newTestEnv(t)
	svc := newDeltaService(env)

	base, comp := seedPair(t, env, uuid.New(),
		[3]float64{0.60, 0.40, 0.30},
		[3]float64{0.78, 0.25, 0.28},
		nil, nil)

	delta, err := svc.Compare(context.Background(), base.ID, comp.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if math.Abs(delta.OptimismDelta-0.18) > 1e-9 {
		t.Fatalf("optimism delta: want=0.18 got=%v", delta.OptimismDelta)
	}
	if math.Abs(delta.RiskDelta-(-0.15)) > 1e-9 {
		t.Fatalf("risk delta: want=-0.15 got=%v", delta.RiskDelta)
	}
	if math.Abs(delta.UncertaintyDelta-(-0.02)) > 1e-9 {
		t.Fatalf("uncertainty delta: want=-0.02 got=%v", delta.UncertaintyDelta)
	}
	want := (0.18 + 0.15 + 0.02) / 3
	if math.Abs(delta.OverallSentimentDelta-want) > 1e-9 {
		t.Fatalf("overall delta: want=%v got=%v", want, delta.OverallSentimentDelta)
	}
	if delta.Significance != types.SignificanceModerate {
		t.Fatalf("significance: want=%v got=%v", types.SignificanceModerate, delta.Significance)
	}
}

func TestSignificanceBoundaries(t *testing.T) {
	cases := []struct {
		delta float64
		want  string
	}{
		{0.09, types.SignificanceMinor},
		{0.10, types.SignificanceModerate},
		{0.20, types.SignificanceMajor},
		{0.35, types.SignificanceMajor},
		{0.40, types.SignificanceCritical},
	}
	for _, tc := range cases {
		if got := significanceFor(tc.delta); got != tc.want {
			t.Fatalf("significance of %v: want=%v got=%v", tc.delta, tc.want, got)
		}
	}
	// Classification follows the largest move regardless of dimension.
	if got := significanceFor(0.01, -0.36, 0.05); got != types.SignificanceCritical {
		t.Fatalf("significance of mixed deltas: want=%v got=%v", types.SignificanceCritical, got)
	}
}

func TestCompareThemeSets(t *testing.T) {
	env := newTestEnv(t)
	svc := newDeltaService(env)

	w1, w2, w3 := 0.5, 0.9, 0.55
	base, comp := seedPair(t, env, uuid.New(),
		[3]float64{0.5, 0.5, 0.5},
		[3]float64{0.5, 0.5, 0.5},
		[]types.Theme{
			{Term: "supply chain", Weight: &w1},
			{Term: "hiring"},
			{Term: "stable demand", Weight: &w3},
		},
		[]types.Theme{
			{Term: "supply chain", Weight: &w2},
			{Term: "ai investment"},
			{Term: "stable demand", Weight: &w3},
		})

	delta, err := svc.Compare(context.Background(), base.ID, comp.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}

	added, removed := delta.AddedTerms(), delta.RemovedTerms()
	if len(added) != 1 || added[0] != "ai investment" {
		t.Fatalf("added: want=[ai investment] got=%v", added)
	}
	if len(removed) != 1 || removed[0] != "hiring" {
		t.Fatalf("removed: want=[hiring] got=%v", removed)
	}
	for _, a := range added {
		for _, r := range removed {
			if a == r {
				t.Fatalf("term %q both added and removed", a)
			}
		}
	}

	evolved := delta.EvolvedWeights()
	if len(evolved) != 1 {
		t.Fatalf("evolved: want=1 got=%d (%v)", len(evolved), evolved)
	}
	if math.Abs(evolved["supply chain"]-0.4) > 1e-9 {
		t.Fatalf("supply chain weight change: want=0.4 got=%v", evolved["supply chain"])
	}
}

func TestCompareValidations(t *testing.T) {
	env := newTestEnv(t)
	svc := newDeltaService(env)
	ctx := context.Background()

	var invalid *fnaerr.ComparisonInvalidError
	var nf *fnaerr.NotFoundError

	// Self comparison.
	id := uuid.New()
	_, err := svc.Compare(ctx, id, id)
	if !errors.As(err, &invalid) {
		t.Fatalf("self compare: want=ComparisonInvalidError got=%v", err)
	}

	// Missing analysis.
	base, comp := seedPair(t, env, uuid.New(), [3]float64{0.5, 0.5, 0.5}, [3]float64{0.5, 0.5, 0.5}, nil, nil)
	_, err = svc.Compare(ctx, base.ID, uuid.New())
	if !errors.As(err, &nf) {
		t.Fatalf("missing comparison: want=NotFoundError got=%v", err)
	}

	// Wrong chronological order.
	_, err = svc.Compare(ctx, comp.ID, base.ID)
	if !errors.As(err, &invalid) {
		t.Fatalf("reversed order: want=ComparisonInvalidError got=%v", err)
	}

	// Different entities.
	otherBase, _ := seedPair(t, env, uuid.New(), [3]float64{0.5, 0.5, 0.5}, [3]float64{0.5, 0.5, 0.5}, nil, nil)
	_, err = svc.Compare(ctx, otherBase.ID, comp.ID)
	if !errors.As(err, &invalid) {
		t.Fatalf("cross entity: want=ComparisonInvalidError got=%v", err)
	}
}

func TestCompareIsIdempotentPerPair(t *testing.T) {
	env := newTestEnv(t)
	svc := newDeltaService(env)
	ctx := context.Background()

	base, comp := seedPair(t, env, uuid.New(), [3]float64{0.5, 0.5, 0.5}, [3]float64{0.7, 0.5, 0.5}, nil, nil)

	first, err := svc.Compare(ctx, base.ID, comp.ID)
	if err != nil {
		t.Fatalf("first compare: %v", err)
	}
	second, err := svc.Compare(ctx, base.ID, comp.ID)
	if err != nil {
		t.Fatalf("second compare: %v", err)
	}

	var count int64
	if err := env.db.Model(&types.Delta{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("delta rows per pair: want=1 got=%d", count)
	}
	if first.BaseAnalysisID != second.BaseAnalysisID || first.ComparisonAnalysisID != second.ComparisonAnalysisID {
		t.Fatalf("pair mismatch between runs: %+v vs %+v", first, second)
	}
}
