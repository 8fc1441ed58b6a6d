package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/backupcodes"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/entries"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/events"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/keys"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/profiles"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/sessions"
)

// RepositoryManager vends entity repositories bound to a DBTX, so a service
// can run several repositories against one shared transaction, and exposes a
// schema migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Profiles(db dbx.DBTX) profiles.Repository
	Entries(db dbx.DBTX) entries.Repository
	Keys(db dbx.DBTX) keys.Repository
	BackupCodes(db dbx.DBTX) backupcodes.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Events(db dbx.DBTX) events.Repository
}
