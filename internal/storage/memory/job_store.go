// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

// JobStore keeps scrape jobs in memory behind a mutex.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scraper.ScrapeJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]scraper.ScrapeJob)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job scraper.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scraper.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.ScrapeJob{}, scraper.ErrNotFound
	}
	return job, nil
}

// UpdateJobStatus moves the job through its state machine. Terminal states
// are absorbing: any transition out of one is rejected.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status scraper.JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.ErrNotFound
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s", scraper.ErrTerminalStatus, job.Status)
	}
	now := time.Now().UTC()
	job.Status = status
	job.Error = errText
	job.UpdatedAt = now
	if status.Terminal() {
		job.CompletedAt = &now
	}
	s.jobs[jobID] = job
	return nil
}

// RecordProgress persists running counters and an optional record reference.
// Progress may still land for the URL that was in flight when a cancel
// arrived, so terminal status does not reject it; the counter invariant does.
func (s *JobStore) RecordProgress(_ context.Context, jobID string, completed, failed int, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.ErrNotFound
	}
	if completed+failed > job.TotalURLs {
		return fmt.Errorf("progress %d+%d exceeds total %d", completed, failed, job.TotalURLs)
	}
	if completed < job.CompletedURLs || failed < job.FailedURLs {
		return errors.New("progress counters may not decrease")
	}
	job.CompletedURLs = completed
	job.FailedURLs = failed
	if recordID != "" {
		job.RecordIDs = append(job.RecordIDs, recordID)
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// CancelJob transitions a pending/in_progress job to cancelled.
func (s *JobStore) CancelJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.ErrNotFound
	}
	if job.Status.Terminal() {
		return fmt.Errorf("cannot cancel job with status: %s", job.Status)
	}
	now := time.Now().UTC()
	job.Status = scraper.JobStatusCancelled
	job.CompletedAt = &now
	job.UpdatedAt = now
	s.jobs[jobID] = job
	return nil
}

// ListJobsByUser returns a user's jobs sorted by start time descending.
// With activeOnly set, only pending and in_progress jobs are returned.
func (s *JobStore) ListJobsByUser(_ context.Context, userID string, activeOnly bool) ([]scraper.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraper.ScrapeJob, 0)
	for _, job := range s.jobs {
		if job.UserID != userID {
			continue
		}
		if activeOnly && job.Status.Terminal() {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}
