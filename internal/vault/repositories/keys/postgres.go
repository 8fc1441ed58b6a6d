// Package keys provides the PostgreSQL-backed repository for per-profile
// encryption key records. A partial unique index in the schema guarantees at
// most one active key per profile; key rotation must therefore deactivate
// the old key before inserting the new one inside the same transaction.
package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

// PostgresRepository implements key storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new active key record.
func (r *PostgresRepository) Create(ctx context.Context, key *models.EncryptionKey) (*models.EncryptionKey, error) {
	query := `
		INSERT INTO encryption_keys (profile_id, wrapped_key, nonce, active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, key.ProfileID, key.WrappedKey, key.Nonce).
		Scan(&key.ID, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	key.Active = true
	return key, nil
}

// GetActive returns the profile's single active key, or common.ErrorNotFound
// if none exists.
func (r *PostgresRepository) GetActive(ctx context.Context, profileID int64) (*models.EncryptionKey, error) {
	query := `
		SELECT id, profile_id, wrapped_key, nonce, active, created_at, updated_at
		FROM encryption_keys
		WHERE profile_id = $1 AND active
	`
	k := &models.EncryptionKey{}
	err := r.db.QueryRowContext(ctx, query, profileID).Scan(
		&k.ID, &k.ProfileID, &k.WrappedKey, &k.Nonce, &k.Active, &k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

// Deactivate retires a key record. The row is kept for audit purposes.
func (r *PostgresRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE encryption_keys SET active = FALSE, updated_at = now() WHERE id = $1 AND active`
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
