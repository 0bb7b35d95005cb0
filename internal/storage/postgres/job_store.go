// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists scrape jobs in the scrape_jobs table.
type JobStore struct {
	pool db
}

// NewJobStore constructs a JobStore from an existing pool (pgxmock in tests).
func NewJobStore(pool db) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, user_id, job_type, status, total_urls, completed_urls, failed_urls,
targets, record_ids, started_at, completed_at, updated_at, error_text`

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job scraper.ScrapeJob) error {
	targets, err := json.Marshal(job.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}
	recordIDs, err := json.Marshal(job.RecordIDs)
	if err != nil {
		return fmt.Errorf("marshal record ids: %w", err)
	}
	query := `
INSERT INTO scrape_jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = s.pool.Exec(ctx, query,
		job.ID, job.UserID, string(job.Type), string(job.Status),
		job.TotalURLs, job.CompletedURLs, job.FailedURLs,
		targets, recordIDs,
		job.StartedAt, job.CompletedAt, job.UpdatedAt, job.Error,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (scraper.ScrapeJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

// UpdateJobStatus moves the job through its state machine. The WHERE clause
// keeps terminal states absorbing.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status scraper.JobStatus, errText string) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if status.Terminal() {
		completedAt = &now
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE scrape_jobs
SET status = $2, error_text = $3, updated_at = $4,
    completed_at = COALESCE($5, completed_at)
WHERE id = $1 AND status NOT IN ('completed','failed','cancelled')`,
		jobID, string(status), errText, now, completedAt)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainRejectedUpdate(ctx, jobID)
	}
	return nil
}

// RecordProgress persists running counters and an optional record reference.
func (s *JobStore) RecordProgress(ctx context.Context, jobID string, completed, failed int, recordID string) error {
	recordIDs := []string{}
	if recordID != "" {
		recordIDs = append(recordIDs, recordID)
	}
	appended, err := json.Marshal(recordIDs)
	if err != nil {
		return fmt.Errorf("marshal record ids: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE scrape_jobs
SET completed_urls = $2, failed_urls = $3,
    record_ids = record_ids || $4::jsonb,
    updated_at = $5
WHERE id = $1 AND $2 + $3 <= total_urls
  AND completed_urls <= $2 AND failed_urls <= $3`,
		jobID, completed, failed, appended, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("progress update rejected for job %s", jobID)
	}
	return nil
}

// CancelJob transitions a pending/in_progress job to cancelled.
func (s *JobStore) CancelJob(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
UPDATE scrape_jobs
SET status = 'cancelled', completed_at = $2, updated_at = $2
WHERE id = $1 AND status IN ('pending','in_progress')`,
		jobID, now)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		job, getErr := s.GetJob(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("cannot cancel job with status: %s", job.Status)
	}
	return nil
}

// ListJobsByUser returns a user's jobs sorted by start time descending.
func (s *JobStore) ListJobsByUser(ctx context.Context, userID string, activeOnly bool) ([]scraper.ScrapeJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE user_id = $1`
	if activeOnly {
		query += ` AND status IN ('pending','in_progress')`
	}
	query += ` ORDER BY started_at DESC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []scraper.ScrapeJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func (s *JobStore) explainRejectedUpdate(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", scraper.ErrTerminalStatus, job.Status)
}

func scanJob(row pgx.Row) (scraper.ScrapeJob, error) {
	var (
		job       scraper.ScrapeJob
		jobType   string
		status    string
		targets   []byte
		recordIDs []byte
	)
	err := row.Scan(
		&job.ID, &job.UserID, &jobType, &status,
		&job.TotalURLs, &job.CompletedURLs, &job.FailedURLs,
		&targets, &recordIDs,
		&job.StartedAt, &job.CompletedAt, &job.UpdatedAt, &job.Error,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.ScrapeJob{}, scraper.ErrNotFound
	}
	if err != nil {
		return scraper.ScrapeJob{}, fmt.Errorf("scan job: %w", err)
	}
	job.Type = scraper.JobType(jobType)
	job.Status = scraper.JobStatus(status)
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &job.Targets); err != nil {
			return scraper.ScrapeJob{}, fmt.Errorf("unmarshal targets: %w", err)
		}
	}
	if len(recordIDs) > 0 {
		if err := json.Unmarshal(recordIDs, &job.RecordIDs); err != nil {
			return scraper.ScrapeJob{}, fmt.Errorf("unmarshal record ids: %w", err)
		}
	}
	return job, nil
}
