// Package services contains the business logic of the vault engine:
// account lifecycle and lockout, session issuance and validation, encrypted
// entry management, key rotation, audit logging, and snapshot export.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/events"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/repomanager"
)

// AuditService records and lists audit events. Writes happen through the
// DBTX of the calling operation: when the operation runs in a transaction,
// a failed audit write rolls the whole operation back. An action without its
// audit record is treated as a failed action, never a silent success.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *sql.DB, m repomanager.RepositoryManager) *AuditService {
	return &AuditService{db: db, repomanager: m}
}

// Record appends one event using the provided handle (transaction or plain
// connection). The returned error must be propagated by the caller.
func (s *AuditService) Record(ctx context.Context, db dbx.DBTX, profileID int64, eventType, category, details string) error {
	repo := s.repomanager.Events(db)
	event := &models.Event{
		ProfileID: profileID,
		EventType: eventType,
		Category:  category,
		Details:   details,
	}
	if err := repo.Append(ctx, event); err != nil {
		return fmt.Errorf("audit write failed: %w", err)
	}
	return nil
}

// ListEvents returns the profile's audit trail ordered ascending by event
// time. The sequence is finite and re-listable with the same filter.
func (s *AuditService) ListEvents(ctx context.Context, profileID int64, filter events.Filter) ([]*models.Event, error) {
	return s.repomanager.Events(s.db).List(ctx, profileID, filter)
}
