package memory

import (
	"context"
	"sync"

	"github.com/seoscope/seoscope/internal/audit"
)

// ResultStore is an in-memory append-only audit.ResultStore.
type ResultStore struct {
	mu      sync.RWMutex
	results []audit.Result
	byJobID map[string]int
}

// NewResultStore creates a ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{
		byJobID: make(map[string]int),
	}
}

// Append inserts a result. An append carrying a job id already on file
// returns the existing row unchanged.
func (s *ResultStore) Append(_ context.Context, result audit.Result) (audit.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.JobID != nil {
		if idx, exists := s.byJobID[*result.JobID]; exists {
			return s.results[idx], nil
		}
		s.byJobID[*result.JobID] = len(s.results)
	}
	s.results = append(s.results, result)
	return result, nil
}

// ListByUser returns the user's results newest-first.
func (s *ResultStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]audit.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mine []audit.Result
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].UserID == userID {
			mine = append(mine, s.results[i])
		}
	}
	if offset >= len(mine) {
		return []audit.Result{}, nil
	}
	mine = mine[offset:]
	if limit > 0 && limit < len(mine) {
		mine = mine[:limit]
	}
	return mine, nil
}
