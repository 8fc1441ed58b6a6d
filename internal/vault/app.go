// Package vault wires the vault engine together: database handle, repository
// manager, crypto provider and the services built on top of them. Embedders
// construct an Engine and drive it through the service accessors.
package vault

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/passvault/internal/cryptox"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/strength"
	"github.com/dmitrijs2005/passvault/internal/vault/config"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/repomanager"
	"github.com/dmitrijs2005/passvault/internal/vault/services"
)

type Engine struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager

	accounts  *services.AccountService
	vault     *services.VaultService
	sessions  *services.SessionService
	audit     *services.AuditService
	snapshots *services.SnapshotService
}

// NewEngine opens the database and wires up the services. The schema is not
// touched; call Migrate before first use.
func NewEngine(cfg *config.Config, logger logging.Logger) (*Engine, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	crypto := cryptox.NewAESGCMProvider()
	scorer := strength.NewLengthScorer()

	audit := services.NewAuditService(db, rm)
	sessions := services.NewSessionService(db, rm, audit, cfg, logger)
	accounts := services.NewAccountService(db, rm, crypto, sessions, audit, cfg, logger)
	vaultSvc := services.NewVaultService(db, rm, crypto, sessions, audit, scorer, cfg, logger)
	snapshots := services.NewSnapshotService(db, rm, sessions, audit, cfg, logger)

	return &Engine{
		config:      cfg,
		logger:      logger,
		db:          db,
		repomanager: rm,
		accounts:    accounts,
		vault:       vaultSvc,
		sessions:    sessions,
		audit:       audit,
		snapshots:   snapshots,
	}, nil
}

// Migrate applies pending schema migrations.
func (e *Engine) Migrate(ctx context.Context) error {
	return e.repomanager.RunMigrations(ctx, e.db)
}

// StartSessionSweeper launches the background purge of expired sessions and
// blocks until ctx is cancelled. Run it in its own goroutine.
func (e *Engine) StartSessionSweeper(ctx context.Context) {
	e.sessions.StartSweeper(ctx)
}

// Close releases the database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Accounts() *services.AccountService   { return e.accounts }
func (e *Engine) Vault() *services.VaultService        { return e.vault }
func (e *Engine) Sessions() *services.SessionService   { return e.sessions }
func (e *Engine) Audit() *services.AuditService        { return e.audit }
func (e *Engine) Snapshots() *services.SnapshotService { return e.snapshots }
