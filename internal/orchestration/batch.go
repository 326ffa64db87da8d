package orchestration

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/models"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/validation"
)

// Job is one batch entry: an id to correlate the output by, plus a full
// validation request. A missing id gets a generated one.
type Job struct {
	ID      string              `json:"id"`
	Request *validation.Request `json:"request"`
}

// ValidateBatch runs independent jobs under the job limiter (level 3). One
// job's failure never cancels the others: successes are collected, failures
// are logged and dropped, and the caller detects a dropped job by its id
// being absent from the returned slice. Output order follows input order.
func (o *Orchestrator) ValidateBatch(ctx context.Context, jobs []Job) []models.ValidationSummary {
	summaries := make([]*models.ValidationSummary, len(jobs))

	var mu sync.Mutex
	var g errgroup.Group
	for i := range jobs {
		idx := i
		job := jobs[i]
		if job.ID == "" {
			job.ID = uuid.NewString()
		}

		g.Go(func() error {
			if err := o.jobLimiter.Acquire(ctx); err != nil {
				slog.WarnContext(ctx, "batch job not scheduled", "job_id", job.ID, "error", err)
				return nil
			}
			defer o.jobLimiter.Release()

			summary, err := o.Validate(ctx, job.Request)
			if err != nil {
				slog.WarnContext(ctx, "batch job failed", "job_id", job.ID, "error", err)
				return nil
			}
			summary.JobID = job.ID

			mu.Lock()
			summaries[idx] = summary
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.ValidationSummary, 0, len(jobs))
	for _, s := range summaries {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
