package memory

import (
	"context"
	"sync"

	"pvp-quiz-service/internal/domain"
)

// ResultStore keeps completed match results in memory. Used when no database
// is configured, and by tests that need to observe persistence calls.
type ResultStore struct {
	mu      sync.Mutex
	results []domain.MatchResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) SaveMatchResult(_ context.Context, result domain.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Results returns a copy of everything saved so far.
func (s *ResultStore) Results() []domain.MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MatchResult, len(s.results))
	copy(out, s.results)
	return out
}
