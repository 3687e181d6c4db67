// Package verification keeps the append-only audit trail of practice
// verification attempts, successful and rejected alike.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agrilock/agrilock/internal/escrow"
	"github.com/agrilock/agrilock/internal/idgen"
)

// ErrNotFound is returned when no log entries match a lookup.
var ErrNotFound = errors.New("verification log not found")

// Outcomes recorded per attempt.
const (
	OutcomeReleased = "released"
	OutcomeRejected = "rejected"
)

// Log is one verification attempt. Entries are append-only; nothing in the
// service mutates or deletes them.
type Log struct {
	ID        string          `json:"id"`
	EscrowID  string          `json:"escrowId"`
	Method    string          `json:"method"`
	Outcome   string          `json:"outcome"`
	Evidence  json.RawMessage `json:"evidence,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Stats aggregates the audit trail.
type Stats struct {
	Total    int            `json:"total"`
	Released int            `json:"released"`
	Rejected int            `json:"rejected"`
	ByMethod map[string]int `json:"byMethod"`
}

// Store persists log entries.
type Store interface {
	Append(ctx context.Context, l *Log) error
	List(ctx context.Context, escrowID string, limit int) ([]*Log, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Service records and reports verification attempts. It satisfies the
// escrow engine's Recorder interface.
type Service struct {
	store Store
}

// NewService wires the audit trail.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record appends one verification attempt.
func (s *Service) Record(ctx context.Context, escrowID, method, outcome string, ev *escrow.Evidence, at time.Time) error {
	var raw json.RawMessage
	if ev != nil {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode evidence: %w", err)
		}
		raw = b
	}
	return s.store.Append(ctx, &Log{
		ID:        idgen.WithPrefix("vlog_"),
		EscrowID:  escrowID,
		Method:    method,
		Outcome:   outcome,
		Evidence:  raw,
		CreatedAt: at,
	})
}

// List returns log entries, optionally narrowed to one escrow, newest first.
func (s *Service) List(ctx context.Context, escrowID string, limit int) ([]*Log, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.List(ctx, escrowID, limit)
}

// Stats aggregates outcomes across the whole trail.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}
