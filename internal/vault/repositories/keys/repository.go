package keys

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.EncryptionKey) (*models.EncryptionKey, error)
	GetActive(ctx context.Context, profileID int64) (*models.EncryptionKey, error)
	Deactivate(ctx context.Context, id int64) error
}
