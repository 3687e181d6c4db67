package verification

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	logs []*Log
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, l *Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *l
	s.logs = append(s.logs, &c)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, escrowID string, limit int) ([]*Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Log
	for _, l := range s.logs {
		if escrowID != "" && l.EscrowID != escrowID {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByMethod: make(map[string]int)}
	for _, l := range s.logs {
		stats.Total++
		switch l.Outcome {
		case OutcomeReleased:
			stats.Released++
		case OutcomeRejected:
			stats.Rejected++
		}
		stats.ByMethod[l.Method]++
	}
	return stats, nil
}
