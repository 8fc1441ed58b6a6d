// Package backupcodes provides the PostgreSQL-backed repository for
// single-use fallback authentication codes.
package backupcodes

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

// PostgresRepository implements backup-code storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateBatch(ctx context.Context, codes []*models.BackupCode) error {
	query := `
		INSERT INTO backup_codes (profile_id, code_hash, salt)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	for _, c := range codes {
		if err := r.db.QueryRowContext(ctx, query, c.ProfileID, c.CodeHash, c.Salt).Scan(&c.ID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) ListUnused(ctx context.Context, profileID int64) ([]*models.BackupCode, error) {
	query := `
		SELECT id, profile_id, code_hash, salt, used, created_at
		FROM backup_codes
		WHERE profile_id = $1 AND NOT used
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.BackupCode
	for rows.Next() {
		c := &models.BackupCode{}
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.CodeHash, &c.Salt, &c.Used, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkUsed consumes a code. The "AND NOT used" guard makes the transition
// atomic: a second concurrent consumer sees zero rows affected.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id int64) error {
	query := `UPDATE backup_codes SET used = TRUE WHERE id = $1 AND NOT used`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteUnused(ctx context.Context, profileID int64) error {
	query := `DELETE FROM backup_codes WHERE profile_id = $1 AND NOT used`
	if _, err := r.db.ExecContext(ctx, query, profileID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
