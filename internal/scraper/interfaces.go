package scraper

import (
	"context"
	"time"
)

// Fetcher retrieves a URL's rendered content using one strategy. Fetch never
// returns an error: every failure mode is encoded into the FetchResult.
type Fetcher interface {
	Method() ScrapingMethod
	// Configured reports whether the adapter can be dispatched at all
	// (service-backed adapters require an API key).
	Configured() bool
	Fetch(ctx context.Context, url string) FetchResult
}

// JobStore persists scrape jobs. Implementations must keep terminal statuses
// absorbing: any transition out of completed/failed/cancelled is rejected.
type JobStore interface {
	CreateJob(ctx context.Context, job ScrapeJob) error
	GetJob(ctx context.Context, jobID string) (ScrapeJob, error)
	// UpdateJobStatus moves the job through its state machine.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string) error
	// RecordProgress persists running counters and an optional new record
	// reference. Called once per URL, never batched.
	RecordProgress(ctx context.Context, jobID string, completed, failed int, recordID string) error
	// CancelJob transitions a pending/in_progress job to cancelled. Jobs
	// already in a terminal state produce an error naming that state.
	CancelJob(ctx context.Context, jobID string) error
	ListJobsByUser(ctx context.Context, userID string, activeOnly bool) ([]ScrapeJob, error)
}

// RecordStore persists per-URL scrape records.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec ScrapeRecord) error
	CompleteRecord(ctx context.Context, rec ScrapeRecord) error
	FailRecord(ctx context.Context, recordID string, errText string) error
	GetRecord(ctx context.Context, recordID string) (ScrapeRecord, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Extractor turns a successful fetch into structured procurement data. The
// production implementation is the LLM agent collaborator; this service only
// depends on the seam.
type Extractor interface {
	Extract(ctx context.Context, result FetchResult, target Target) (Extraction, error)
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Sleeper waits between units of work; tests substitute an instant one.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}
