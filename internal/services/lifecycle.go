package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/platform/cache"
	"github.com/fnaplatform/fna-backend/internal/platform/embedding"
	"github.com/fnaplatform/fna-backend/internal/platform/envutil"
	"github.com/fnaplatform/fna-backend/internal/platform/lmstudio"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
	"github.com/fnaplatform/fna-backend/internal/types"
	"github.com/fnaplatform/fna-backend/internal/vector"
)

// SectionText is one narrative section supplied for processing. Extraction
// happens upstream; this service only ever sees plain text.
type SectionText struct {
	SectionType string `json:"section_type"`
	Text        string `json:"text"`
}

type LifecycleConfig struct {
	// HardTimeout forcibly fails a processing run. SoftTimeout only logs;
	// the run keeps going.
	HardTimeout time.Duration
	SoftTimeout time.Duration
	// ChunkChars bounds the size of each embedded text chunk.
	ChunkChars int
}

func LifecycleConfigFromEnv() LifecycleConfig {
	return LifecycleConfig{
		HardTimeout: envutil.DurationSeconds("PROCESS_HARD_TIMEOUT", 3600*time.Second),
		SoftTimeout: envutil.DurationSeconds("PROCESS_SOFT_TIMEOUT", 3300*time.Second),
		ChunkChars:  envutil.Int("EMBED_CHUNK_CHARS", 1000),
	}
}

// Lifecycle owns report status transitions. Claiming is the single mutual
// exclusion point: a conditional UPDATE moves PENDING to PROCESSING and
// whoever flips the row does the work. There are no automatic retries; a
// FAILED report stays FAILED until an operator requeues it.
type Lifecycle struct {
	db  *gorm.DB
	log *logger.Logger
	cfg LifecycleConfig

	reports    repos.ReportRepo
	analyses   repos.AnalysisRepo
	embeddings repos.EmbeddingRepo

	sentiment lmstudio.Client
	embedder  embedding.Client
	index     vector.Index

	sentimentCache *cache.Cache[lmstudio.Result]
	embeddingCache *cache.Cache[[]float32]

	now func() time.Time
}

func NewLifecycle(
	db *gorm.DB,
	log *logger.Logger,
	cfg LifecycleConfig,
	reports repos.ReportRepo,
	analyses repos.AnalysisRepo,
	embeddings repos.EmbeddingRepo,
	sentiment lmstudio.Client,
	embedder embedding.Client,
	index vector.Index,
	sentimentCache *cache.Cache[lmstudio.Result],
	embeddingCache *cache.Cache[[]float32],
) *Lifecycle {
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = 3600 * time.Second
	}
	if cfg.SoftTimeout <= 0 || cfg.SoftTimeout >= cfg.HardTimeout {
		cfg.SoftTimeout = cfg.HardTimeout * 11 / 12
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = 1000
	}
	return &Lifecycle{
		db:             db,
		log:            log.With("service", "Lifecycle"),
		cfg:            cfg,
		reports:        reports,
		analyses:       analyses,
		embeddings:     embeddings,
		sentiment:      sentiment,
		embedder:       embedder,
		index:          index,
		sentimentCache: sentimentCache,
		embeddingCache: embeddingCache,
		now:            time.Now,
	}
}

// Claim moves the report PENDING -> PROCESSING. Exactly one concurrent
// caller wins; losers get AlreadyClaimedError.
func (s *Lifecycle) Claim(ctx context.Context, reportID uuid.UUID) error {
	report, err := s.reports.GetByID(ctx, nil, reportID)
	if err != nil {
		return err
	}
	if report == nil {
		return fnaerr.NotFound("report", reportID)
	}
	won, err := s.reports.ClaimPending(ctx, nil, reportID)
	if err != nil {
		return err
	}
	if !won {
		current, err := s.reports.GetByID(ctx, nil, reportID)
		if err != nil {
			return err
		}
		status := report.Status
		if current != nil {
			status = current.Status
		}
		return fnaerr.AlreadyClaimed(reportID, status)
	}
	return nil
}

// Process runs the full analysis pipeline for one report: claim, inference
// per section, chunk embedding, then a single transaction persisting the
// analysis, its embeddings, and the COMPLETED status. force requeues a
// COMPLETED or FAILED report before claiming. Without force the call is an
// idempotent no-op on a report already in flight or done: COMPLETED returns
// the stored analysis, PROCESSING returns nil without error.
func (s *Lifecycle) Process(ctx context.Context, reportID uuid.UUID, sections []SectionText, force bool) (*types.Analysis, error) {
	if len(sections) == 0 {
		return nil, fnaerr.Validation("sections", "at least one narrative section is required")
	}
	report, err := s.reports.GetByID(ctx, nil, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fnaerr.NotFound("report", reportID)
	}

	if force {
		if _, err := s.reports.Requeue(ctx, nil, reportID, []string{
			types.ReportStatusFailed, types.ReportStatusCompleted,
		}); err != nil {
			return nil, err
		}
	} else if report.Status == types.ReportStatusCompleted {
		return s.analyses.GetLatestByReportID(ctx, nil, reportID)
	} else if report.Status == types.ReportStatusProcessing {
		return nil, nil
	}

	won, err := s.reports.ClaimPending(ctx, nil, reportID)
	if err != nil {
		return nil, err
	}
	if !won {
		current, err := s.reports.GetByID(ctx, nil, reportID)
		if err != nil {
			return nil, err
		}
		status := report.Status
		if current != nil {
			status = current.Status
		}
		if !force {
			switch status {
			case types.ReportStatusProcessing:
				return nil, nil
			case types.ReportStatusCompleted:
				return s.analyses.GetLatestByReportID(ctx, nil, reportID)
			}
		}
		return nil, fnaerr.AlreadyClaimed(reportID, status)
	}

	started := s.now()
	analysis, err := s.runPipeline(ctx, report, sections, started)
	if err != nil {
		if mErr := s.reports.MarkFailed(ctx, nil, reportID, err.Error()); mErr != nil {
			s.log.Error("record failure", "report_id", reportID, "error", mErr)
		}
		return nil, err
	}
	return analysis, nil
}

// runPipeline does the inference and persistence under the hard timeout.
// The soft timeout only warns; in-flight adapter calls are never cancelled
// by it.
func (s *Lifecycle) runPipeline(ctx context.Context, report *types.Report, sections []SectionText, started time.Time) (*types.Analysis, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.HardTimeout)
	defer cancel()

	soft := time.AfterFunc(s.cfg.SoftTimeout, func() {
		s.log.Warn("processing past soft timeout",
			"report_id", report.ID, "soft_timeout", s.cfg.SoftTimeout.String())
	})
	defer soft.Stop()

	type outcome struct {
		analysis *types.Analysis
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		a, err := s.analyzeAndPersist(runCtx, report, sections, started)
		done <- outcome{analysis: a, err: err}
	}()

	select {
	case out := <-done:
		return out.analysis, out.err
	case <-runCtx.Done():
		return nil, fnaerr.ProcessingTimeout(report.ID, s.cfg.HardTimeout)
	}
}

func (s *Lifecycle) analyzeAndPersist(ctx context.Context, report *types.Report, sections []SectionText, started time.Time) (*types.Analysis, error) {
	results := make([]lmstudio.Result, 0, len(sections))
	for _, sec := range sections {
		res, err := s.analyzeSection(ctx, sec)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	merged := mergeResults(results)

	analysis := &types.Analysis{
		ID:                    uuid.New(),
		ReportID:              report.ID,
		OptimismScore:         merged.OptimismScore,
		OptimismConfidence:    merged.OptimismConfidence,
		RiskScore:             merged.RiskScore,
		RiskConfidence:        merged.RiskConfidence,
		UncertaintyScore:      merged.UncertaintyScore,
		UncertaintyConfidence: merged.UncertaintyConfidence,
		ModelVersion:          merged.ModelVersion,
	}
	if err := analysis.SetThemes(merged.KeyThemes); err != nil {
		return nil, err
	}
	if err := analysis.SetRiskIndicators(merged.RiskIndicators); err != nil {
		return nil, err
	}
	if len(merged.NarrativeSections) > 0 {
		raw, err := json.Marshal(merged.NarrativeSections)
		if err != nil {
			return nil, err
		}
		analysis.NarrativeSections = datatypes.JSON(raw)
	}

	rows, records, err := s.embedSections(ctx, analysis.ID, report.EntityID, sections)
	if err != nil {
		return nil, err
	}

	analysis.ProcessingTimeSeconds = int(s.now().Sub(started) / time.Second)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.analyses.Create(ctx, tx, analysis); err != nil {
			return err
		}
		if err := s.embeddings.CreateBatch(ctx, tx, rows); err != nil {
			return err
		}
		return s.reports.MarkCompleted(ctx, tx, report.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if err := s.index.Insert(ctx, rec); err != nil {
			s.log.Error("vector insert", "embedding_id", rec.ID, "error", err)
		}
	}

	s.log.Info("report processed",
		"report_id", report.ID,
		"analysis_id", analysis.ID,
		"sections", len(sections),
		"embeddings", len(rows),
		"seconds", analysis.ProcessingTimeSeconds)
	return analysis, nil
}

func (s *Lifecycle) analyzeSection(ctx context.Context, sec SectionText) (lmstudio.Result, error) {
	key := cache.Key("sentiment", sec.SectionType, sec.Text)
	if s.sentimentCache != nil {
		if res, ok := s.sentimentCache.Get(key); ok {
			return res, nil
		}
	}
	res, err := s.sentiment.AnalyzeSection(ctx, sec.SectionType, sec.Text)
	if err != nil {
		return lmstudio.Result{}, err
	}
	if s.sentimentCache != nil {
		s.sentimentCache.Set(key, res)
	}
	return res, nil
}

func (s *Lifecycle) embedSections(ctx context.Context, analysisID, entityID uuid.UUID, sections []SectionText) ([]*types.Embedding, []vector.Record, error) {
	var rows []*types.Embedding
	var records []vector.Record
	for _, sec := range sections {
		chunks := chunkText(sec.Text, s.cfg.ChunkChars)
		vectors, err := s.embedChunks(ctx, chunks)
		if err != nil {
			return nil, nil, err
		}
		for i, chunk := range chunks {
			row := &types.Embedding{
				ID:          uuid.New(),
				AnalysisID:  analysisID,
				EntityID:    entityID,
				SectionType: sec.SectionType,
				ChunkIndex:  i,
				SourceText:  chunk,
			}
			if err := row.SetValues(vectors[i]); err != nil {
				return nil, nil, err
			}
			rows = append(rows, row)
			records = append(records, vector.Record{
				ID:          row.ID,
				AnalysisID:  analysisID,
				EntityID:    entityID,
				SectionType: sec.SectionType,
				ChunkIndex:  i,
				Vector:      vectors[i],
				SourceText:  chunk,
			})
		}
	}
	return rows, records, nil
}

// embedChunks serves cached vectors and batches the misses into a single
// adapter call.
func (s *Lifecycle) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	var missing []string
	var missingIdx []int
	for i, chunk := range chunks {
		key := cache.Key("embedding", s.embedder.Model(), chunk)
		if s.embeddingCache != nil {
			if v, ok := s.embeddingCache.Get(key); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, chunk)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vectors, err := s.embedder.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fnaerr.ExternalService("embedding",
			fmt.Errorf("embedding count mismatch: want=%d got=%d", len(missing), len(vectors)))
	}
	for j, i := range missingIdx {
		out[i] = vectors[j]
		if s.embeddingCache != nil {
			s.embeddingCache.Set(cache.Key("embedding", s.embedder.Model(), missing[j]), vectors[j])
		}
	}
	return out, nil
}

// Requeue moves a FAILED report back to PENDING, or a COMPLETED one when
// force is set. Anything else is a validation failure; PROCESSING reports
// never requeue.
func (s *Lifecycle) Requeue(ctx context.Context, reportID uuid.UUID, force bool) error {
	report, err := s.reports.GetByID(ctx, nil, reportID)
	if err != nil {
		return err
	}
	if report == nil {
		return fnaerr.NotFound("report", reportID)
	}
	from := []string{types.ReportStatusFailed}
	if force {
		from = append(from, types.ReportStatusCompleted)
	}
	ok, err := s.reports.Requeue(ctx, nil, reportID, from)
	if err != nil {
		return err
	}
	if !ok {
		return fnaerr.Validation("status", "cannot requeue report in status %s", report.Status)
	}
	return nil
}

// mergeResults folds per-section inference results into one analysis:
// scores and confidences are averaged, themes are unioned keeping the first
// weight seen, risk indicators concatenated, narrative sections merged.
func mergeResults(results []lmstudio.Result) lmstudio.Result {
	if len(results) == 1 {
		return results[0]
	}
	var merged lmstudio.Result
	seen := map[string]bool{}
	narrative := map[string]string{}
	for _, r := range results {
		merged.OptimismScore += r.OptimismScore
		merged.OptimismConfidence += r.OptimismConfidence
		merged.RiskScore += r.RiskScore
		merged.RiskConfidence += r.RiskConfidence
		merged.UncertaintyScore += r.UncertaintyScore
		merged.UncertaintyConfidence += r.UncertaintyConfidence
		for _, theme := range r.KeyThemes {
			term := strings.ToLower(strings.TrimSpace(theme.Term))
			if term == "" || seen[term] {
				continue
			}
			seen[term] = true
			merged.KeyThemes = append(merged.KeyThemes, theme)
		}
		merged.RiskIndicators = append(merged.RiskIndicators, r.RiskIndicators...)
		for k, v := range r.NarrativeSections {
			if _, ok := narrative[k]; !ok {
				narrative[k] = v
			}
		}
		if merged.ModelVersion == "" {
			merged.ModelVersion = r.ModelVersion
		}
	}
	n := float64(len(results))
	merged.OptimismScore /= n
	merged.OptimismConfidence /= n
	merged.RiskScore /= n
	merged.RiskConfidence /= n
	merged.UncertaintyScore /= n
	merged.UncertaintyConfidence /= n
	if len(narrative) > 0 {
		merged.NarrativeSections = narrative
	}
	return merged
}

// chunkText splits text into chunks of at most maxChars, preferring word
// boundaries. Whitespace-only text yields no chunks.
func chunkText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}
	words := strings.Fields(text)
	var chunks []string
	var b strings.Builder
	for _, w := range words {
		if b.Len() > 0 && b.Len()+1+len(w) > maxChars {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
