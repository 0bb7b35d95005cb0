package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

// RecordStore persists per-URL scrape records in the scrape_records table.
type RecordStore struct {
	pool db
}

// NewRecordStore constructs a RecordStore from an existing pool.
func NewRecordStore(pool db) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RecordStore{pool: pool}, nil
}

const recordColumns = `id, job_id, link_id, url, state, method, status, page_type,
rows_json, row_count, quality, completeness,
prompt_tokens, completion_tokens, total_tokens,
blob_uri, content_hash, error_text, created_at, updated_at`

// CreateRecord inserts a new in-progress record.
func (s *RecordStore) CreateRecord(ctx context.Context, rec scraper.ScrapeRecord) error {
	rowsJSON, err := json.Marshal(rec.Rows)
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}
	query := `
INSERT INTO scrape_records (` + recordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.JobID, rec.LinkID, rec.URL, rec.State,
		string(rec.Method), string(rec.Status), string(rec.PageType),
		rowsJSON, rec.RowCount, string(rec.Quality), rec.Completeness,
		rec.Tokens.Prompt, rec.Tokens.Completion, rec.Tokens.Total,
		rec.BlobURI, rec.ContentHash, rec.Error, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// CompleteRecord writes the final state of a successful scrape.
func (s *RecordStore) CompleteRecord(ctx context.Context, rec scraper.ScrapeRecord) error {
	rowsJSON, err := json.Marshal(rec.Rows)
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE scrape_records
SET status = 'completed', method = $2, page_type = $3,
    rows_json = $4, row_count = $5, quality = $6, completeness = $7,
    prompt_tokens = $8, completion_tokens = $9, total_tokens = $10,
    blob_uri = $11, content_hash = $12, error_text = '', updated_at = $13
WHERE id = $1`,
		rec.ID, string(rec.Method), string(rec.PageType),
		rowsJSON, rec.RowCount, string(rec.Quality), rec.Completeness,
		rec.Tokens.Prompt, rec.Tokens.Completion, rec.Tokens.Total,
		rec.BlobURI, rec.ContentHash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("complete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrNotFound
	}
	return nil
}

// FailRecord marks a record failed with the given error text.
func (s *RecordStore) FailRecord(ctx context.Context, recordID string, errText string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE scrape_records
SET status = 'failed', error_text = $2, updated_at = $3
WHERE id = $1`,
		recordID, errText, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("fail record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrNotFound
	}
	return nil
}

// GetRecord fetches a record by ID.
func (s *RecordStore) GetRecord(ctx context.Context, recordID string) (scraper.ScrapeRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM scrape_records WHERE id = $1`, recordID)
	var (
		rec      scraper.ScrapeRecord
		method   string
		status   string
		pageType string
		quality  string
		rowsJSON []byte
	)
	err := row.Scan(
		&rec.ID, &rec.JobID, &rec.LinkID, &rec.URL, &rec.State,
		&method, &status, &pageType,
		&rowsJSON, &rec.RowCount, &quality, &rec.Completeness,
		&rec.Tokens.Prompt, &rec.Tokens.Completion, &rec.Tokens.Total,
		&rec.BlobURI, &rec.ContentHash, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.ScrapeRecord{}, scraper.ErrNotFound
	}
	if err != nil {
		return scraper.ScrapeRecord{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Method = scraper.ScrapingMethod(method)
	rec.Status = scraper.RecordStatus(status)
	rec.PageType = scraper.PageType(pageType)
	rec.Quality = scraper.DataQuality(quality)
	if len(rowsJSON) > 0 {
		if err := json.Unmarshal(rowsJSON, &rec.Rows); err != nil {
			return scraper.ScrapeRecord{}, fmt.Errorf("unmarshal rows: %w", err)
		}
	}
	return rec, nil
}
