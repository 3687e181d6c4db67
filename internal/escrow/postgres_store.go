package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
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

const escrowColumns = `id, farmer_id, amount_drops, practice_type, status,
	condition_hash, fulfillment, ledger_sequence,
	finish_after, deadline, cancel_after,
	evidence, release_tx_hash, cancel_tx_hash,
	verified_at, resolved_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, e *Escrow) error {
	evidence, err := marshalEvidence(e.Evidence)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		e.ID, e.FarmerID, e.AmountDrops, e.PracticeType, e.Status,
		e.ConditionHash, e.Fulfillment, int64(e.LedgerSequence),
		e.FinishAfter, e.Deadline, e.CancelAfter,
		evidence, nullString(e.ReleaseTxHash), nullString(e.CancelTxHash),
		nullTime(e.VerifiedAt), nullTime(e.ResolvedAt), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Escrow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)
	e, err := scanEscrow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE 1=1`
	var args []any
	if f.FarmerID != "" {
		args = append(args, f.FarmerID)
		query += ` AND farmer_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escrows: %w", err)
	}
	defer rows.Close()

	var out []*Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateIfStatus(ctx context.Context, id string, expected Status, patch Patch) (bool, error) {
	evidence, err := marshalEvidence(patch.Evidence)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE escrows SET
			status = $1,
			evidence = COALESCE($2, evidence),
			release_tx_hash = COALESCE($3, release_tx_hash),
			cancel_tx_hash = COALESCE($4, cancel_tx_hash),
			verified_at = COALESCE($5, verified_at),
			resolved_at = COALESCE($6, resolved_at),
			updated_at = $7
		WHERE id = $8 AND status = $9`,
		patch.Status, evidence, nullString(patch.ReleaseTxHash), nullString(patch.CancelTxHash),
		nullTime(patch.VerifiedAt), nullTime(patch.ResolvedAt), patch.UpdatedAt,
		id, expected)
	if err != nil {
		return false, fmt.Errorf("update escrow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish a missing row from a status mismatch.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM escrows WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE status = $1 AND deadline <= $2
		ORDER BY deadline ASC
		LIMIT $3`,
		StatusPending, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list expiring escrows: %w", err)
	}
	defer rows.Close()

	var out []*Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByFarmer(ctx context.Context, farmerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escrows WHERE farmer_id = $1`, farmerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count escrows by farmer: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscrow(row rowScanner) (*Escrow, error) {
	var (
		e          Escrow
		sequence   int64
		evidence   []byte
		releaseTx  sql.NullString
		cancelTx   sql.NullString
		verifiedAt sql.NullTime
		resolvedAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.FarmerID, &e.AmountDrops, &e.PracticeType, &e.Status,
		&e.ConditionHash, &e.Fulfillment, &sequence,
		&e.FinishAfter, &e.Deadline, &e.CancelAfter,
		&evidence, &releaseTx, &cancelTx,
		&verifiedAt, &resolvedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.LedgerSequence = uint32(sequence)
	if len(evidence) > 0 {
		var ev Evidence
		if err := json.Unmarshal(evidence, &ev); err != nil {
			return nil, fmt.Errorf("decode evidence: %w", err)
		}
		e.Evidence = &ev
	}
	if releaseTx.Valid {
		e.ReleaseTxHash = releaseTx.String
	}
	if cancelTx.Valid {
		e.CancelTxHash = cancelTx.String
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		e.VerifiedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	return &e, nil
}

func marshalEvidence(ev *Evidence) ([]byte, error) {
	if ev == nil {
		return nil, nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
