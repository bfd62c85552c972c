package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fnaplatform/fna-backend/internal/platform/lmstudio"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
	"github.com/fnaplatform/fna-backend/internal/types"
)

type testEnv struct {
	db       *gorm.DB
	log      *logger.Logger
	reports  repos.ReportRepo
	analyses repos.AnalysisRepo
	embeds   repos.EmbeddingRepo
	deltas   repos.DeltaRepo
	jobs     repos.BatchJobRepo
	alerts   repos.AlertRepo
	prefs    repos.AlertPreferenceRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Every pooled connection to :memory: is its own database; pin the
	// pool to one connection so all goroutines see the same tables.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = db.AutoMigrate(
		&types.Report{},
		&types.Analysis{},
		&types.Embedding{},
		&types.Delta{},
		&types.BatchJob{},
		&types.AlertPreference{},
		&types.Alert{},
	)
	if err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &testEnv{
		db:       db,
		log:      log,
		reports:  repos.NewReportRepo(db, log),
		analyses: repos.NewAnalysisRepo(db, log),
		embeds:   repos.NewEmbeddingRepo(db, log),
		deltas:   repos.NewDeltaRepo(db, log),
		jobs:     repos.NewBatchJobRepo(db, log),
		alerts:   repos.NewAlertRepo(db, log),
		prefs:    repos.NewAlertPreferenceRepo(db, log),
	}
}

func (e *testEnv) seedReport(t *testing.T, entityID uuid.UUID, filed time.Time, status string) *types.Report {
	t.Helper()
	r := &types.Report{
		ID:         uuid.New(),
		EntityID:   entityID,
		FilingDate: filed,
		Status:     status,
	}
	if err := e.db.Create(r).Error; err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return r
}

func (e *testEnv) seedAnalysis(t *testing.T, reportID uuid.UUID, optimism, risk, uncertainty float64, themes []types.Theme) *types.Analysis {
	t.Helper()
	a := &types.Analysis{
		ID:               uuid.New(),
		ReportID:         reportID,
		OptimismScore:    optimism,
		RiskScore:        risk,
		UncertaintyScore: uncertainty,
	}
	if themes != nil {
		if err := a.SetThemes(themes); err != nil {
			t.Fatalf("set themes: %v", err)
		}
	}
	if err := e.db.Create(a).Error; err != nil {
		t.Fatalf("seed analysis: %v", err)
	}
	return a
}

// fakeSentiment is a programmable inference adapter.
type fakeSentiment struct {
	mu      sync.Mutex
	calls   int
	analyze func(ctx context.Context, sectionType, text string) (lmstudio.Result, error)
}

func (f *fakeSentiment) AnalyzeSection(ctx context.Context, sectionType, text string) (lmstudio.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.analyze(ctx, sectionType, text)
}

func (f *fakeSentiment) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func steadyResult() lmstudio.Result {
	w := 0.6
	return lmstudio.Result{
		OptimismScore:         0.7,
		OptimismConfidence:    0.9,
		RiskScore:             0.3,
		RiskConfidence:        0.8,
		UncertaintyScore:      0.2,
		UncertaintyConfidence: 0.85,
		KeyThemes: []types.Theme{
			{Term: "margin expansion", Weight: &w},
			{Term: "cloud demand"},
		},
		RiskIndicators:    []types.RiskIndicator{{Term: "headwinds"}},
		NarrativeSections: map[string]string{"summary": "steady quarter", "tone": "confident"},
		ModelVersion:      "test-model",
	}
}

// fakeEmbedder returns deterministic unit vectors derived from input length.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	dim   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v := make([]float32, f.dim)
		v[len(in)%f.dim] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Model() string  { return "fake-embedder" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingNotifier captures published alerts.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*types.Alert
}

func (n *recordingNotifier) PublishAlert(_ context.Context, alert *types.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) published() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}
