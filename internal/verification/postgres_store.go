package verification

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore is the production Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over an established database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, l *Log) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_logs (id, escrow_id, method, outcome, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.EscrowID, l.Method, l.Outcome, []byte(l.Evidence), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verification log: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, escrowID string, limit int) ([]*Log, error) {
	query := `SELECT id, escrow_id, method, outcome, evidence, created_at FROM verification_logs`
	var args []any
	if escrowID != "" {
		query += ` WHERE escrow_id = $1`
		args = append(args, escrowID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verification logs: %w", err)
	}
	defer rows.Close()

	var out []*Log
	for rows.Next() {
		var (
			l        Log
			evidence []byte
		)
		if err := rows.Scan(&l.ID, &l.EscrowID, &l.Method, &l.Outcome, &evidence, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Evidence = evidence
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByMethod: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT method, outcome, COUNT(*) FROM verification_logs GROUP BY method, outcome`)
	if err != nil {
		return nil, fmt.Errorf("verification stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			method, outcome string
			n               int
		)
		if err := rows.Scan(&method, &outcome, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		switch outcome {
		case OutcomeReleased:
			stats.Released += n
		case OutcomeRejected:
			stats.Rejected += n
		}
		stats.ByMethod[method] += n
	}
	return stats, rows.Err()
}
