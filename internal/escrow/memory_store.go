package escrow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	escrows map[string]*Escrow
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{escrows: make(map[string]*Escrow)}
}

func (s *MemoryStore) Create(ctx context.Context, e *Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrows[e.ID] = clone(e)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.escrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e), nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Escrow, 0, len(s.escrows))
	for _, e := range s.escrows {
		if f.FarmerID != "" && e.FarmerID != f.FarmerID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateIfStatus(ctx context.Context, id string, expected Status, patch Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.escrows[id]
	if !ok {
		return false, ErrNotFound
	}
	if e.Status != expected {
		return false, nil
	}

	e.Status = patch.Status
	e.UpdatedAt = patch.UpdatedAt
	if patch.Evidence != nil {
		ev := *patch.Evidence
		e.Evidence = &ev
	}
	if patch.ReleaseTxHash != "" {
		e.ReleaseTxHash = patch.ReleaseTxHash
	}
	if patch.CancelTxHash != "" {
		e.CancelTxHash = patch.CancelTxHash
	}
	if patch.VerifiedAt != nil {
		t := *patch.VerifiedAt
		e.VerifiedAt = &t
	}
	if patch.ResolvedAt != nil {
		t := *patch.ResolvedAt
		e.ResolvedAt = &t
	}
	return true, nil
}

func (s *MemoryStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Escrow
	for _, e := range s.escrows {
		if e.Status != StatusPending || e.Deadline.After(before) {
			continue
		}
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountByFarmer(ctx context.Context, farmerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.escrows {
		if e.FarmerID == farmerID {
			n++
		}
	}
	return n, nil
}

func clone(e *Escrow) *Escrow {
	c := *e
	if e.Evidence != nil {
		ev := *e.Evidence
		c.Evidence = &ev
	}
	if e.VerifiedAt != nil {
		t := *e.VerifiedAt
		c.VerifiedAt = &t
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
