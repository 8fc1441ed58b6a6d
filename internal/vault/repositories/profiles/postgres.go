// Package profiles provides the PostgreSQL-backed repository for the
// identity root of the vault: user profiles with their lockout state.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// PostgresRepository implements profile storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new profile. A username collision is reported as
// common.ErrorDuplicateUsername.
func (r *PostgresRepository) Create(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	query := `
		INSERT INTO profiles (username, password_hash, salt, secret_question, answer_hash, answer_salt)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		profile.Username, profile.PasswordHash, profile.Salt,
		profile.SecretQuestion, profile.AnswerHash, profile.AnswerSalt,
	).Scan(&profile.ID, &profile.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, common.ErrorDuplicateUsername
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return profile, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	query := `
		SELECT id, username, password_hash, salt, secret_question, answer_hash, answer_salt,
		       mfa_secret, failed_attempts, is_locked, created_at
		FROM profiles
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	query := `
		SELECT id, username, password_hash, salt, secret_question, answer_hash, answer_salt,
		       mfa_secret, failed_attempts, is_locked, created_at
		FROM profiles
		WHERE username = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// RegisterFailure performs the compare-and-increment in one statement so two
// concurrent failed logins cannot both observe a counter below threshold and
// both escape locking.
func (r *PostgresRepository) RegisterFailure(ctx context.Context, id int64, threshold int) (int, bool, error) {
	query := `
		UPDATE profiles
		SET failed_attempts = failed_attempts + 1,
		    is_locked = is_locked OR failed_attempts + 1 >= $2
		WHERE id = $1
		RETURNING failed_attempts, is_locked
	`
	var attempts int
	var locked bool
	if err := r.db.QueryRowContext(ctx, query, id, threshold).Scan(&attempts, &locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, common.ErrorNotFound
		}
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return attempts, locked, nil
}

func (r *PostgresRepository) ResetFailures(ctx context.Context, id int64) error {
	query := `UPDATE profiles SET failed_attempts = 0 WHERE id = $1`
	return r.execOne(ctx, query, id)
}

// Unlock clears both the lock flag and the failure counter.
func (r *PostgresRepository) Unlock(ctx context.Context, id int64) error {
	query := `UPDATE profiles SET is_locked = FALSE, failed_attempts = 0 WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) SetMFASecret(ctx context.Context, id int64, secret string) error {
	query := `UPDATE profiles SET mfa_secret = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, secret)
}

// Delete removes the profile; dependent rows go with it via ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM profiles WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Profile, error) {
	p := &models.Profile{}
	err := row.Scan(
		&p.ID, &p.Username, &p.PasswordHash, &p.Salt, &p.SecretQuestion,
		&p.AnswerHash, &p.AnswerSalt, &p.MFASecret, &p.FailedAttempts,
		&p.IsLocked, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
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
