// Package worker implements the batch job execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/govsight/procurement-crawler/internal/metrics"
	"github.com/govsight/procurement-crawler/internal/scraper"
)

// DefaultPolitenessDelay is the pause between URLs of one job so target
// sites never see back-to-back requests from a batch.
const DefaultPolitenessDelay = 2 * time.Second

// ScrapeRunner is the seam to the single-URL scrape pipeline.
type ScrapeRunner interface {
	ScrapeURL(ctx context.Context, req scraper.ScrapeRequest) (scraper.ScrapeOutcome, error)
}

// Config controls Worker behavior.
type Config struct {
	Topic           string
	PolitenessDelay time.Duration
}

// CompletionEvent is published when a job reaches a terminal state.
type CompletionEvent struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Total     int    `json:"total_urls"`
	Completed int    `json:"completed_urls"`
	Failed    int    `json:"failed_urls"`
}

// Worker consumes queue items and drives each job's URL list through the
// scrape pipeline. Cancellation is checked before each URL, after each URL
// and after the politeness delay, so a cancel lands within one URL's work.
type Worker struct {
	queue     scraper.Queue
	jobs      scraper.JobStore
	runner    ScrapeRunner
	publisher scraper.Publisher
	sleeper   scraper.Sleeper
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue scraper.Queue,
	jobs scraper.JobStore,
	runner ScrapeRunner,
	publisher scraper.Publisher,
	sleeper scraper.Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PolitenessDelay <= 0 {
		cfg.PolitenessDelay = DefaultPolitenessDelay
	}
	if cfg.Topic == "" {
		cfg.Topic = "scrape-jobs"
	}
	return &Worker{
		queue:     queue,
		jobs:      jobs,
		runner:    runner,
		publisher: publisher,
		sleeper:   sleeper,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item scraper.QueueItem) {
	job, err := w.jobs.GetJob(ctx, item.JobID)
	if err != nil {
		w.logger.Error("load job failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		// Cancelled (or otherwise finished) before the worker picked it up.
		w.logger.Info("skipping terminal job",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
		)
		w.publishCompletion(ctx, job.ID, job.Status, job.TotalURLs, job.CompletedURLs, job.FailedURLs)
		return
	}

	if err := w.jobs.UpdateJobStatus(ctx, job.ID, scraper.JobStatusInProgress, ""); err != nil {
		w.logger.Error("mark job in progress failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	var completed, failed int
	cancelled := false

	for i, target := range job.Targets {
		if w.jobCancelled(ctx, job.ID) {
			cancelled = true
			break
		}

		outcome := w.scrapeTarget(ctx, job.ID, target)
		if outcome.Success {
			completed++
		} else {
			failed++
		}
		if err := w.jobs.RecordProgress(ctx, job.ID, completed, failed, outcome.RecordID); err != nil {
			w.logger.Error("record progress failed", zap.String("job_id", job.ID), zap.Error(err))
		}

		if w.jobCancelled(ctx, job.ID) {
			cancelled = true
			break
		}

		if i < len(job.Targets)-1 {
			w.sleeper.Sleep(ctx, w.cfg.PolitenessDelay)
			if w.jobCancelled(ctx, job.ID) {
				cancelled = true
				break
			}
		}
	}

	finalStatus := scraper.JobStatusCompleted
	if cancelled {
		finalStatus = scraper.JobStatusCancelled
	} else {
		// A job where every URL failed still ran to completion; per-URL
		// failures live in the counters, not the job status.
		if err := w.jobs.UpdateJobStatus(ctx, job.ID, scraper.JobStatusCompleted, ""); err != nil {
			w.logger.Error("finalize job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	metrics.JobsCompleted.WithLabelValues(string(finalStatus)).Inc()
	w.publishCompletion(ctx, job.ID, finalStatus, job.TotalURLs, completed, failed)
	w.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(finalStatus)),
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)
}

// scrapeTarget runs one URL and converts every failure mode, including
// pipeline errors, into a failed outcome so the job keeps moving.
func (w *Worker) scrapeTarget(ctx context.Context, jobID string, target scraper.Target) scraper.ScrapeOutcome {
	outcome, err := w.runner.ScrapeURL(ctx, scraper.ScrapeRequest{Target: target, JobID: jobID})
	if err != nil {
		w.logger.Error("scrape url failed",
			zap.String("job_id", jobID),
			zap.String("url", target.URL),
			zap.Error(err),
		)
		return scraper.ScrapeOutcome{Error: fmt.Sprintf("scrape pipeline error: %v", err)}
	}
	return outcome
}

func (w *Worker) jobCancelled(ctx context.Context, jobID string) bool {
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		w.logger.Error("cancellation check failed", zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return job.Status == scraper.JobStatusCancelled
}

func (w *Worker) publishCompletion(ctx context.Context, jobID string, status scraper.JobStatus, total, completed, failed int) {
	if w.publisher == nil {
		return
	}
	_, err := w.publisher.Publish(ctx, w.cfg.Topic, CompletionEvent{
		JobID:     jobID,
		Status:    string(status),
		Total:     total,
		Completed: completed,
		Failed:    failed,
	})
	if err != nil {
		w.logger.Error("publish completion failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
