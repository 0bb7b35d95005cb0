// Package service implements the single-URL scrape operation: fetch with
// fallback, snapshot the raw page, extract structured data, persist a record.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/govsight/procurement-crawler/internal/metrics"
	"github.com/govsight/procurement-crawler/internal/scraper"
	"github.com/govsight/procurement-crawler/internal/strategy"
)

// Strategy is the seam to the fallback orchestrator.
type Strategy interface {
	Scrape(ctx context.Context, url string, opts strategy.Options) scraper.StrategyResult
}

// Scraper coordinates one URL end to end. Every code path leaves the record
// in a terminal state; in_progress never survives a return.
type Scraper struct {
	strategy  Strategy
	records   scraper.RecordStore
	blobs     scraper.BlobStore
	extractor scraper.Extractor
	hasher    scraper.Hasher
	ids       scraper.IDGenerator
	clock     scraper.Clock
	logger    *zap.Logger
}

// Config carries the collaborators for a Scraper.
type Config struct {
	Strategy  Strategy
	Records   scraper.RecordStore
	Blobs     scraper.BlobStore
	Extractor scraper.Extractor
	Hasher    scraper.Hasher
	IDs       scraper.IDGenerator
	Clock     scraper.Clock
	Logger    *zap.Logger
}

// New validates the collaborators and builds a Scraper.
func New(cfg Config) (*Scraper, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if cfg.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if cfg.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scraper{
		strategy:  cfg.Strategy,
		records:   cfg.Records,
		blobs:     cfg.Blobs,
		extractor: cfg.Extractor,
		hasher:    cfg.Hasher,
		ids:       cfg.IDs,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}, nil
}

// ScrapeURL runs the full pipeline for one target URL.
func (s *Scraper) ScrapeURL(ctx context.Context, req scraper.ScrapeRequest) (outcome scraper.ScrapeOutcome, err error) {
	recordID, err := s.ids.NewID()
	if err != nil {
		return scraper.ScrapeOutcome{}, fmt.Errorf("generate record id: %w", err)
	}

	now := s.clock.Now()
	rec := scraper.ScrapeRecord{
		ID:        recordID,
		JobID:     req.JobID,
		LinkID:    req.Target.LinkID,
		URL:       req.Target.URL,
		State:     req.Target.State,
		Method:    scraper.MethodHTTPFetch,
		Status:    scraper.RecordStatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.records.CreateRecord(ctx, rec); err != nil {
		return scraper.ScrapeOutcome{}, fmt.Errorf("create record: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic during scrape: %v", r)
			s.logger.Error("scrape panicked",
				zap.String("record_id", recordID),
				zap.String("url", req.Target.URL),
				zap.Any("panic", r),
			)
			if failErr := s.records.FailRecord(ctx, recordID, msg); failErr != nil {
				s.logger.Error("failed to mark record failed after panic", zap.Error(failErr))
			}
			outcome = scraper.ScrapeOutcome{RecordID: recordID, Error: msg}
			err = nil
		}
	}()

	opts := strategy.DefaultOptions()
	if req.PreferredMethod != "" {
		opts.PreferredMethod = req.PreferredMethod
	}
	if req.EnableFallback != nil {
		opts.EnableFallback = *req.EnableFallback
	}

	strat := s.strategy.Scrape(ctx, req.Target.URL, opts)
	result := strat.Result

	if !result.Success {
		metrics.URLsProcessed.WithLabelValues("failed").Inc()
		if failErr := s.records.FailRecord(ctx, recordID, result.Error); failErr != nil {
			return scraper.ScrapeOutcome{}, fmt.Errorf("fail record: %w", failErr)
		}
		return scraper.ScrapeOutcome{RecordID: recordID, Error: result.Error}, nil
	}

	rec.Method = result.Method
	rec.PageType = result.Metadata.PageType
	rec.BlobURI, rec.ContentHash = s.snapshot(ctx, recordID, result)

	extraction, extractErr := s.extractor.Extract(ctx, result, req.Target)
	if extractErr != nil {
		metrics.URLsProcessed.WithLabelValues("failed").Inc()
		msg := fmt.Sprintf("extraction failed: %v", extractErr)
		if failErr := s.records.FailRecord(ctx, recordID, msg); failErr != nil {
			return scraper.ScrapeOutcome{}, fmt.Errorf("fail record: %w", failErr)
		}
		return scraper.ScrapeOutcome{RecordID: recordID, Error: msg}, nil
	}

	rec.Status = scraper.RecordStatusCompleted
	rec.Rows = extraction.Rows
	rec.RowCount = len(extraction.Rows)
	rec.Quality = extraction.Quality
	rec.Completeness = extraction.Completeness
	rec.Tokens = extraction.Tokens
	rec.UpdatedAt = s.clock.Now()

	if err := s.records.CompleteRecord(ctx, rec); err != nil {
		return scraper.ScrapeOutcome{}, fmt.Errorf("complete record: %w", err)
	}

	metrics.URLsProcessed.WithLabelValues("completed").Inc()
	return scraper.ScrapeOutcome{
		Success:      true,
		RecordID:     recordID,
		Quality:      extraction.Quality,
		Completeness: extraction.Completeness,
	}, nil
}

// snapshot writes the raw HTML to blob storage, keyed by content hash so
// identical pages dedupe. Snapshot failures degrade the record, never the
// scrape.
func (s *Scraper) snapshot(ctx context.Context, recordID string, result scraper.FetchResult) (uri, hash string) {
	if result.HTML == "" {
		return "", ""
	}
	hash, err := s.hasher.Hash([]byte(result.HTML))
	if err != nil {
		s.logger.Warn("hash snapshot failed", zap.String("record_id", recordID), zap.Error(err))
		return "", ""
	}
	path := fmt.Sprintf("snapshots/%s/%s.html", hash[:2], hash)
	uri, err = s.blobs.PutObject(ctx, path, "text/html; charset=utf-8", []byte(result.HTML))
	if err != nil {
		s.logger.Warn("store snapshot failed",
			zap.String("record_id", recordID),
			zap.String("path", path),
			zap.Error(err),
		)
		return "", hash
	}
	return uri, hash
}
