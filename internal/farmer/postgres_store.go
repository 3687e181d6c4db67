package farmer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
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

const farmerColumns = `id, name, wallet_address, region, farm_size_ha, primary_crop, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, f *Farmer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO farmers (`+farmerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.Name, f.WalletAddress, nullEmpty(f.Region), f.FarmSizeHa, nullEmpty(f.PrimaryCrop), f.CreatedAt, f.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, f.WalletAddress)
	}
	if err != nil {
		return fmt.Errorf("insert farmer: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Farmer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE id = $1`, id)
	return scanFarmer(row)
}

func (s *PostgresStore) GetByWallet(ctx context.Context, address string) (*Farmer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE wallet_address = $1`, address)
	return scanFarmer(row)
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Farmer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+farmerColumns+` FROM farmers ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list farmers: %w", err)
	}
	defer rows.Close()

	var out []*Farmer
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, f *Farmer) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE farmers SET name = $1, region = $2, farm_size_ha = $3, primary_crop = $4, updated_at = $5
		WHERE id = $6`,
		f.Name, nullEmpty(f.Region), f.FarmSizeHa, nullEmpty(f.PrimaryCrop), f.UpdatedAt, f.ID)
	if err != nil {
		return fmt.Errorf("update farmer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM farmers WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		// The escrows FK backstops the service-level reference check.
		return fmt.Errorf("%w: foreign key", ErrReferenced)
	}
	if err != nil {
		return fmt.Errorf("delete farmer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFarmer(row rowScanner) (*Farmer, error) {
	var (
		f            Farmer
		region, crop sql.NullString
	)
	err := row.Scan(&f.ID, &f.Name, &f.WalletAddress, &region, &f.FarmSizeHa, &crop, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if region.Valid {
		f.Region = region.String
	}
	if crop.Valid {
		f.PrimaryCrop = crop.String
	}
	return &f, nil
}

func nullEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
