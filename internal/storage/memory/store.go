package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-context/internal/storage"
)

// Store is an in-memory implementation of UsageStore
type Store struct {
	mu      sync.RWMutex
	records []*storage.UsageRecord
	byID    map[string]*storage.UsageRecord
}

var _ storage.UsageStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		byID: make(map[string]*storage.UsageRecord),
	}
}

func (s *Store) RecordUsage(ctx context.Context, rec *storage.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rec.ID]; exists {
		return fmt.Errorf("usage record %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	stored := *rec
	s.records = append(s.records, &stored)
	s.byID[rec.ID] = &stored
	return nil
}

func (s *Store) GetUsage(ctx context.Context, id string) (*storage.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byID[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	out := *rec
	return &out, nil
}

func (s *Store) ListUsage(ctx context.Context, opts storage.ListOptions) ([]*storage.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit == 0 {
		limit = storage.DefaultListLimit
	}

	result := []*storage.UsageRecord{}
	skipped := 0
	for i := len(s.records) - 1; i >= 0 && len(result) < limit; i-- {
		rec := s.records[i]
		if opts.Model != "" && rec.Model != opts.Model {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out := *rec
		result = append(result, &out)
	}
	return result, nil
}

func (s *Store) Close() error {
	return nil
}
