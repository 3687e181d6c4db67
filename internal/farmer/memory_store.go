package farmer

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	farmers map[string]*Farmer
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{farmers: make(map[string]*Farmer)}
}

func (s *MemoryStore) Create(ctx context.Context, f *Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *f
	s.farmers[f.ID] = &c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.farmers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *f
	return &c, nil
}

func (s *MemoryStore) GetByWallet(ctx context.Context, address string) (*Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.farmers {
		if f.WalletAddress == address {
			c := *f
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Farmer, 0, len(s.farmers))
	for _, f := range s.farmers {
		c := *f
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, f *Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.farmers[f.ID]; !ok {
		return ErrNotFound
	}
	c := *f
	s.farmers[f.ID] = &c
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.farmers[id]; !ok {
		return ErrNotFound
	}
	delete(s.farmers, id)
	return nil
}
