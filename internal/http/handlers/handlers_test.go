package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	fnahttp "github.com/fnaplatform/fna-backend/internal/http"
	"github.com/fnaplatform/fna-backend/internal/http/handlers"
	"github.com/fnaplatform/fna-backend/internal/platform/cache"
	"github.com/fnaplatform/fna-backend/internal/platform/lmstudio"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
	"github.com/fnaplatform/fna-backend/internal/services"
	"github.com/fnaplatform/fna-backend/internal/types"
	"github.com/fnaplatform/fna-backend/internal/vector"
)

type stubSentiment struct{}

func (stubSentiment) AnalyzeSection(context.Context, string, string) (lmstudio.Result, error) {
	return lmstudio.Result{
		OptimismScore: 0.6, OptimismConfidence: 0.9,
		RiskScore: 0.3, RiskConfidence: 0.8,
		UncertaintyScore: 0.2, UncertaintyConfidence: 0.9,
		ModelVersion: "stub",
	}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}
func (stubEmbedder) Dimension() int { return 4 }
func (stubEmbedder) Model() string  { return "stub-embedder" }

type fixture struct {
	db     *gorm.DB
	engine *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = db.AutoMigrate(
		&types.Report{}, &types.Analysis{}, &types.Embedding{},
		&types.Delta{}, &types.BatchJob{}, &types.AlertPreference{}, &types.Alert{},
	)
	if err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	reportRepo := repos.NewReportRepo(db, log)
	analysisRepo := repos.NewAnalysisRepo(db, log)
	embeddingRepo := repos.NewEmbeddingRepo(db, log)
	deltaRepo := repos.NewDeltaRepo(db, log)
	jobRepo := repos.NewBatchJobRepo(db, log)
	alertRepo := repos.NewAlertRepo(db, log)
	prefRepo := repos.NewAlertPreferenceRepo(db, log)

	idx := vector.NewLinear(4)
	lifecycle := services.NewLifecycle(
		db, log, services.LifecycleConfig{},
		reportRepo, analysisRepo, embeddingRepo,
		stubSentiment{}, stubEmbedder{}, idx,
		cache.New[lmstudio.Result](10, time.Hour),
		cache.New[[]float32](10, 0),
	)
	batch := services.NewBatch(log, services.BatchConfig{}, jobRepo, reportRepo, lifecycle)
	delta := services.NewDelta(log, deltaRepo, analysisRepo)
	alert := services.NewAlert(log, alertRepo, prefRepo, deltaRepo, analysisRepo, nil)
	search := services.NewSearch(log, stubEmbedder{}, idx, nil)
	trend := services.NewTrend(log, analysisRepo)

	engine := fnahttp.NewRouter(fnahttp.RouterConfig{
		ReportHandler: handlers.NewReportHandler(lifecycle),
		BatchHandler:  handlers.NewBatchHandler(batch),
		DeltaHandler:  handlers.NewDeltaHandler(delta, alert),
		AlertHandler:  handlers.NewAlertHandler(alert),
		SearchHandler: handlers.NewSearchHandler(search),
		TrendHandler:  handlers.NewTrendHandler(trend),
		HealthHandler: handlers.NewHealthHandler(),
	})
	return &fixture{db: db, engine: engine}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedReport(t *testing.T, entityID uuid.UUID, status string) *types.Report {
	t.Helper()
	r := &types.Report{
		ID:         uuid.New(),
		EntityID:   entityID,
		FilingDate: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:     status,
	}
	if err := f.db.Create(r).Error; err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return r
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: want=200 got=%d", rec.Code)
	}
}

func TestProcessEndpoint(t *testing.T) {
	f := newFixture(t)
	report := f.seedReport(t, uuid.New(), types.ReportStatusPending)

	body := map[string]any{
		"sections": []map[string]string{{"section_type": "mda", "text": "Demand stayed firm."}},
	}
	rec := f.do(t, http.MethodPost, "/api/v1/reports/"+report.ID.String()+"/process", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("process: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	// Missing report maps to 404.
	rec = f.do(t, http.MethodPost, "/api/v1/reports/"+uuid.NewString()+"/process", body, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("process missing: want=404 got=%d", rec.Code)
	}

	// In-flight report is an idempotent no-op, acknowledged with 202.
	inFlight := f.seedReport(t, uuid.New(), types.ReportStatusProcessing)
	rec = f.do(t, http.MethodPost, "/api/v1/reports/"+inFlight.ID.String()+"/process", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("process in flight: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}

	// Forcing cannot take the claim from the current owner; that is a 409.
	rec = f.do(t, http.MethodPost, "/api/v1/reports/"+inFlight.ID.String()+"/process?force=true", body, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("process in flight forced: want=409 got=%d", rec.Code)
	}

	// Malformed body maps to 400.
	rec = f.do(t, http.MethodPost, "/api/v1/reports/"+report.ID.String()+"/process", map[string]any{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("process bad body: want=400 got=%d", rec.Code)
	}
}

func TestRequeueEndpoint(t *testing.T) {
	f := newFixture(t)
	failed := f.seedReport(t, uuid.New(), types.ReportStatusFailed)

	rec := f.do(t, http.MethodPost, "/api/v1/reports/"+failed.ID.String()+"/requeue", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("requeue failed: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	completed := f.seedReport(t, uuid.New(), types.ReportStatusCompleted)
	rec = f.do(t, http.MethodPost, "/api/v1/reports/"+completed.ID.String()+"/requeue", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("requeue completed: want=400 got=%d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/reports/"+completed.ID.String()+"/requeue?force=true", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("requeue completed forced: want=200 got=%d", rec.Code)
	}
}

func TestBatchEndpointValidation(t *testing.T) {
	f := newFixture(t)
	userID := uuid.NewString()

	rec := f.do(t, http.MethodPost, "/api/v1/batches", map[string]any{"tier": "basic", "items": []any{}}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("batch without user: want=401 got=%d", rec.Code)
	}

	items := make([]map[string]any, 0, 4)
	for i := 0; i < 4; i++ {
		r := f.seedReport(t, uuid.New(), types.ReportStatusPending)
		items = append(items, map[string]any{
			"report_id": r.ID.String(),
			"sections":  []map[string]string{{"section_type": "mda", "text": fmt.Sprintf("quarter %d", i)}},
		})
	}
	rec = f.do(t, http.MethodPost, "/api/v1/batches",
		map[string]any{"tier": "basic", "items": items},
		map[string]string{"X-User-ID": userID})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("batch over tier limit: want=400 got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/v1/batches",
		map[string]any{"tier": "basic", "items": items[:2]},
		map[string]string{"X-User-ID": userID})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("batch accepted: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Batch types.BatchJob `json:"batch"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/batches/"+envelope.Batch.ID.String(), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status: want=200 got=%d", rec.Code)
	}
}

func TestCompareEndpointInvalid(t *testing.T) {
	f := newFixture(t)

	entityID := uuid.New()
	early := f.seedReport(t, entityID, types.ReportStatusCompleted)
	late := f.seedReport(t, entityID, types.ReportStatusCompleted)
	late.FilingDate = early.FilingDate.AddDate(0, 3, 0)
	if err := f.db.Save(late).Error; err != nil {
		t.Fatalf("save report: %v", err)
	}
	baseAnalysis := &types.Analysis{ID: uuid.New(), ReportID: early.ID, OptimismScore: 0.5}
	compAnalysis := &types.Analysis{ID: uuid.New(), ReportID: late.ID, OptimismScore: 0.7}
	for _, a := range []*types.Analysis{baseAnalysis, compAnalysis} {
		if err := f.db.Create(a).Error; err != nil {
			t.Fatalf("seed analysis: %v", err)
		}
	}

	rec := f.do(t, http.MethodPost, "/api/v1/deltas/compare", map[string]any{
		"base_analysis_id":       baseAnalysis.ID.String(),
		"comparison_analysis_id": compAnalysis.ID.String(),
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("compare: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	// Reversed order maps to 422.
	rec = f.do(t, http.MethodPost, "/api/v1/deltas/compare", map[string]any{
		"base_analysis_id":       compAnalysis.ID.String(),
		"comparison_analysis_id": baseAnalysis.ID.String(),
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("compare reversed: want=422 got=%d", rec.Code)
	}
}

func TestAlertPreferenceEndpointValidation(t *testing.T) {
	f := newFixture(t)
	headers := map[string]string{"X-User-ID": uuid.NewString()}

	rec := f.do(t, http.MethodPost, "/api/v1/alerts/preferences", map[string]any{
		"entity_id":            uuid.NewString(),
		"alert_type":           "SENTIMENT_SHIFT",
		"threshold_percentage": 75,
	}, headers)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("preference over max: want=400 got=%d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/preferences", map[string]any{
		"entity_id":            uuid.NewString(),
		"alert_type":           "SENTIMENT_SHIFT",
		"threshold_percentage": 15,
	}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("preference: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/alerts", nil, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("list alerts: want=200 got=%d", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/search/similar?q=", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query: want=400 got=%d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/search/similar?q=margin+pressure", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestTrendsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/entities/not-a-uuid/trends", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad entity id: want=400 got=%d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/entities/"+uuid.NewString()+"/trends", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trends: want=200 got=%d", rec.Code)
	}
}
