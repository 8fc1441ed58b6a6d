// Package entries provides the PostgreSQL-backed repository for encrypted
// credential entries.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

// PostgresRepository implements entry storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, entry *models.Entry) (*models.Entry, error) {
	query := `
		INSERT INTO passwords (profile_id, key_id, service_name, login_url, username_or_email,
		                       ciphertext, nonce, notes, strength)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		entry.ProfileID, entry.KeyID, entry.ServiceName, entry.LoginURL, entry.UsernameOrEmail,
		entry.Ciphertext, entry.Nonce, entry.Notes, entry.Strength,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id, profileID int64) (*models.Entry, error) {
	query := `
		SELECT id, profile_id, key_id, service_name, login_url, username_or_email,
		       ciphertext, nonce, notes, last_accessed, strength, created_at, updated_at
		FROM passwords
		WHERE id = $1 AND profile_id = $2
	`
	e := &models.Entry{}
	err := r.db.QueryRowContext(ctx, query, id, profileID).Scan(
		&e.ID, &e.ProfileID, &e.KeyID, &e.ServiceName, &e.LoginURL, &e.UsernameOrEmail,
		&e.Ciphertext, &e.Nonce, &e.Notes, &e.LastAccessed, &e.Strength, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListByProfile(ctx context.Context, profileID int64) ([]*models.Entry, error) {
	query := `
		SELECT id, profile_id, key_id, service_name, login_url, username_or_email,
		       ciphertext, nonce, notes, last_accessed, strength, created_at, updated_at
		FROM passwords
		WHERE profile_id = $1
		ORDER BY service_name, id
	`
	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e := &models.Entry{}
		if err := rows.Scan(
			&e.ID, &e.ProfileID, &e.KeyID, &e.ServiceName, &e.LoginURL, &e.UsernameOrEmail,
			&e.Ciphertext, &e.Nonce, &e.Notes, &e.LastAccessed, &e.Strength, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update rewrites the mutable fields and advances updated_at. The row is
// matched by both id and profile id; zero rows affected means not found.
func (r *PostgresRepository) Update(ctx context.Context, entry *models.Entry) error {
	query := `
		UPDATE passwords
		SET key_id = $3, service_name = $4, login_url = $5, username_or_email = $6,
		    ciphertext = $7, nonce = $8, notes = $9, strength = $10, updated_at = now()
		WHERE id = $1 AND profile_id = $2
	`
	return r.execOne(ctx, query,
		entry.ID, entry.ProfileID, entry.KeyID, entry.ServiceName, entry.LoginURL,
		entry.UsernameOrEmail, entry.Ciphertext, entry.Nonce, entry.Notes, entry.Strength,
	)
}

func (r *PostgresRepository) Delete(ctx context.Context, id, profileID int64) error {
	query := `DELETE FROM passwords WHERE id = $1 AND profile_id = $2`
	return r.execOne(ctx, query, id, profileID)
}

func (r *PostgresRepository) TouchLastAccessed(ctx context.Context, id int64) error {
	query := `UPDATE passwords SET last_accessed = now() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) UpdateCiphertext(ctx context.Context, id, keyID int64, ciphertext, nonce []byte) error {
	query := `
		UPDATE passwords
		SET key_id = $2, ciphertext = $3, nonce = $4, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, keyID, ciphertext, nonce)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
