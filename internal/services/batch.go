package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/platform/envutil"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/repos"
	"github.com/fnaplatform/fna-backend/internal/types"
)

// TierLimit returns the maximum batch size for a subscription tier.
func TierLimit(tier string) (int, error) {
	switch tier {
	case "basic":
		return 3, nil
	case "pro":
		return 5, nil
	case "enterprise":
		return 10, nil
	default:
		return 0, fnaerr.Validation("tier", "unknown tier %q", tier)
	}
}

// BatchItem is one report in a submission, with the narrative sections to
// process it against.
type BatchItem struct {
	ReportID uuid.UUID     `json:"report_id"`
	Sections []SectionText `json:"sections"`
}

// processFunc is the per-report work a batch fans out. The default is
// Lifecycle.Process; tests substitute a stub.
type processFunc func(ctx context.Context, reportID uuid.UUID, sections []SectionText, force bool) (*types.Analysis, error)

type BatchConfig struct {
	// DefaultConcurrency bounds the fan-out when the caller does not ask
	// for a narrower one.
	DefaultConcurrency int
}

func BatchConfigFromEnv() BatchConfig {
	return BatchConfig{
		DefaultConcurrency: envutil.Int("BATCH_CONCURRENCY", 4),
	}
}

// Batch groups report processing into tier-limited jobs. The job row is the
// queue: workers are goroutines of this process and per-member outcomes land
// in the job's status map as they finish.
type Batch struct {
	log     *logger.Logger
	cfg     BatchConfig
	jobs    repos.BatchJobRepo
	reports repos.ReportRepo
	process processFunc

	mu sync.Mutex
	wg sync.WaitGroup

	now func() time.Time
}

func NewBatch(log *logger.Logger, cfg BatchConfig, jobs repos.BatchJobRepo, reports repos.ReportRepo, lifecycle *Lifecycle) *Batch {
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 4
	}
	b := &Batch{
		log:     log.With("service", "Batch"),
		cfg:     cfg,
		jobs:    jobs,
		reports: reports,
		now:     time.Now,
	}
	if lifecycle != nil {
		b.process = lifecycle.Process
	}
	return b
}

// Submit validates the submission, records the job, and starts the fan-out
// in the background. The returned job is the PENDING snapshot; poll
// GetStatus for progress.
func (b *Batch) Submit(ctx context.Context, userID uuid.UUID, tier string, items []BatchItem, concurrency int) (*types.BatchJob, error) {
	limit, err := TierLimit(tier)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fnaerr.Validation("report_ids", "batch is empty")
	}
	if len(items) > limit {
		return nil, fnaerr.Validation("report_ids", "batch size %d exceeds %s tier limit %d", len(items), tier, limit)
	}

	ids := make([]uuid.UUID, 0, len(items))
	seen := map[uuid.UUID]bool{}
	for _, item := range items {
		if seen[item.ReportID] {
			return nil, fnaerr.Validation("report_ids", "duplicate report id %s", item.ReportID)
		}
		seen[item.ReportID] = true
		ids = append(ids, item.ReportID)
	}

	found, err := b.reports.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	if len(found) != len(ids) {
		foundSet := map[uuid.UUID]bool{}
		for _, r := range found {
			foundSet[r.ID] = true
		}
		for _, id := range ids {
			if !foundSet[id] {
				return nil, fnaerr.NotFound("report", id)
			}
		}
	}

	job := &types.BatchJob{
		ID:     uuid.New(),
		UserID: userID,
		Status: types.BatchStatusPending,
	}
	if err := job.SetMembers(ids); err != nil {
		return nil, err
	}
	statusMap := make(map[string]string, len(ids))
	for _, id := range ids {
		statusMap[id.String()] = types.ReportStatusPending
	}
	if err := job.SetStatusMap(statusMap); err != nil {
		return nil, err
	}
	if err := b.jobs.Create(ctx, nil, job); err != nil {
		return nil, err
	}

	if concurrency <= 0 {
		concurrency = b.cfg.DefaultConcurrency
	}
	b.wg.Add(1)
	go b.run(job.ID, items, concurrency)

	return job, nil
}

// run executes one batch detached from the submitting request.
func (b *Batch) run(jobID uuid.UUID, items []BatchItem, concurrency int) {
	defer b.wg.Done()
	ctx := context.Background()

	if err := b.jobs.UpdateFields(ctx, nil, jobID, map[string]any{
		"status": types.BatchStatusProcessing,
	}); err != nil {
		b.log.Error("batch start", "batch_id", jobID, "error", err)
		return
	}

	statuses := make(map[string]string, len(items))
	var statusMu sync.Mutex
	var successful, failed int
	var skipped []uuid.UUID

	record := func(reportID uuid.UUID, status string) {
		statusMu.Lock()
		statuses[reportID.String()] = status
		switch status {
		case types.ReportStatusCompleted:
			successful++
		case types.ReportStatusFailed:
			failed++
		case types.ReportStatusProcessing:
			skipped = append(skipped, reportID)
		}
		snapshot := make(map[string]string, len(statuses))
		for k, v := range statuses {
			snapshot[k] = v
		}
		statusMu.Unlock()
		b.flush(ctx, jobID, snapshot)
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			analysis, err := b.process(ctx, item.ReportID, item.Sections, false)
			switch {
			case err == nil && analysis == nil:
				// Idempotent no-op: the member is already in flight elsewhere.
				record(item.ReportID, types.ReportStatusProcessing)
			case err == nil:
				record(item.ReportID, types.ReportStatusCompleted)
			case isAlreadyClaimed(err):
				// Someone else is processing this member; leave it to them.
				record(item.ReportID, types.ReportStatusProcessing)
			default:
				b.log.Warn("batch member failed", "batch_id", jobID, "report_id", item.ReportID, "error", err)
				record(item.ReportID, types.ReportStatusFailed)
			}
			return nil
		})
	}
	_ = g.Wait()

	// Members skipped on a lost claim may have reached a terminal status
	// under their other owner while the rest of the batch ran. Count those
	// outcomes before aggregating.
	if len(skipped) > 0 {
		reports, err := b.reports.GetByIDs(ctx, nil, skipped)
		if err != nil {
			b.log.Warn("batch skipped-member recheck", "batch_id", jobID, "error", err)
		} else {
			for _, r := range reports {
				if types.ReportStatusTerminal(r.Status) {
					record(r.ID, r.Status)
				}
			}
		}
	}

	aggregate := aggregateStatus(successful, failed, len(items))
	fields := map[string]any{
		"status":     aggregate,
		"successful": successful,
		"failed":     failed,
	}
	if aggregate != types.BatchStatusProcessing {
		fields["processed_at"] = b.now()
	}
	if err := b.jobs.UpdateFields(ctx, nil, jobID, fields); err != nil {
		b.log.Error("batch finish", "batch_id", jobID, "error", err)
		return
	}
	b.log.Info("batch finished",
		"batch_id", jobID, "status", aggregate, "successful", successful, "failed", failed)
}

// flush writes the current per-report status map. The service-level mutex
// serializes writers so concurrent members never interleave a read-modify-
// write on the jsonb column.
func (b *Batch) flush(ctx context.Context, jobID uuid.UUID, snapshot map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job := &types.BatchJob{}
	if err := job.SetStatusMap(snapshot); err != nil {
		b.log.Error("encode status map", "batch_id", jobID, "error", err)
		return
	}
	if err := b.jobs.UpdateFields(ctx, nil, jobID, map[string]any{
		"per_report_status": job.PerReportStatus,
	}); err != nil {
		b.log.Error("flush status map", "batch_id", jobID, "error", err)
	}
}

// GetStatus returns a read-only snapshot of the job. Safe to poll while the
// batch runs.
func (b *Batch) GetStatus(ctx context.Context, batchID uuid.UUID) (*types.BatchJob, error) {
	job, err := b.jobs.GetByID(ctx, nil, batchID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fnaerr.NotFound("batch", batchID)
	}
	return job, nil
}

// Wait blocks until every in-flight batch has finished. Used on shutdown
// and by tests.
func (b *Batch) Wait() {
	b.wg.Wait()
}

// aggregateStatus folds member outcomes into the job status. The job is
// terminal only once every member reached a terminal report status: while a
// skipped member is still in flight under another owner the job stays
// PROCESSING, and FAILED means every member failed, not merely that none
// succeeded.
func aggregateStatus(successful, failed, total int) string {
	switch {
	case successful+failed < total:
		return types.BatchStatusProcessing
	case successful == total:
		return types.BatchStatusCompleted
	case failed == total:
		return types.BatchStatusFailed
	default:
		return types.BatchStatusPartiallyCompleted
	}
}

func isAlreadyClaimed(err error) bool {
	var claimed *fnaerr.AlreadyClaimedError
	return errors.As(err, &claimed)
}
