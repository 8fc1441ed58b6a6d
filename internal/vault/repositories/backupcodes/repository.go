package backupcodes

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

type Repository interface {
	CreateBatch(ctx context.Context, codes []*models.BackupCode) error
	ListUnused(ctx context.Context, profileID int64) ([]*models.BackupCode, error)

	// MarkUsed flips used=false to true for the given code. A code that is
	// missing or already consumed yields common.ErrorNotFound, so the
	// transition happens exactly once.
	MarkUsed(ctx context.Context, id int64) error

	// DeleteUnused discards the remaining codes of a batch, used when a
	// fresh batch is issued.
	DeleteUnused(ctx context.Context, profileID int64) error
}
