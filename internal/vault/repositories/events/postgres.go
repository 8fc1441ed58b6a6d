// Package events provides the PostgreSQL-backed repository for the
// append-only audit log.
package events

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

// PostgresRepository implements audit-log storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO event_log (profile_id, event_type, category, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, event_time
	`
	err := r.db.QueryRowContext(ctx, query,
		event.ProfileID, event.EventType, event.Category, event.Details,
	).Scan(&event.ID, &event.EventTime)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, profileID int64, filter Filter) ([]*models.Event, error) {
	query := `
		SELECT id, profile_id, event_time, event_type, category, details
		FROM event_log
		WHERE profile_id = $1
	`
	args := []any{profileID}

	if filter.EventType != "" {
		args = append(args, filter.EventType)
		query += " AND event_type = $" + strconv.Itoa(len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += " AND category = $" + strconv.Itoa(len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += " AND event_time >= $" + strconv.Itoa(len(args))
	}

	query += " ORDER BY event_time, id"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Event
	for rows.Next() {
		e := &models.Event{}
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.EventTime, &e.EventType, &e.Category, &e.Details); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
