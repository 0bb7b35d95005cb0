package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/govsight/procurement-crawler/internal/scraper"
)

// RecordStore keeps scrape records in memory.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]scraper.ScrapeRecord
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]scraper.ScrapeRecord)}
}

// CreateRecord stores a new record, normally at in_progress status.
func (s *RecordStore) CreateRecord(_ context.Context, rec scraper.ScrapeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return errors.New("record already exists")
	}
	s.records[rec.ID] = rec
	return nil
}

// CompleteRecord marks the record completed with its extraction output.
func (s *RecordStore) CompleteRecord(_ context.Context, rec scraper.ScrapeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[rec.ID]
	if !ok {
		return scraper.ErrNotFound
	}
	rec.CreatedAt = existing.CreatedAt
	rec.Status = scraper.RecordStatusCompleted
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.ID] = rec
	return nil
}

// FailRecord marks the record failed with an error message.
func (s *RecordStore) FailRecord(_ context.Context, recordID string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return scraper.ErrNotFound
	}
	rec.Status = scraper.RecordStatusFailed
	rec.Error = errText
	rec.UpdatedAt = time.Now().UTC()
	s.records[recordID] = rec
	return nil
}

// GetRecord fetches a record by ID.
func (s *RecordStore) GetRecord(_ context.Context, recordID string) (scraper.ScrapeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	if !ok {
		return scraper.ScrapeRecord{}, scraper.ErrNotFound
	}
	return rec, nil
}
