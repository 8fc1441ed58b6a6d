package entries

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

type Repository interface {
	Create(ctx context.Context, entry *models.Entry) (*models.Entry, error)

	// GetByID and the mutating operations take the owning profile id and
	// match it in the query, so a foreign entry id behaves exactly like a
	// missing one.
	GetByID(ctx context.Context, id, profileID int64) (*models.Entry, error)
	ListByProfile(ctx context.Context, profileID int64) ([]*models.Entry, error)
	Update(ctx context.Context, entry *models.Entry) error
	Delete(ctx context.Context, id, profileID int64) error

	TouchLastAccessed(ctx context.Context, id int64) error

	// UpdateCiphertext rebinds an entry to a new key during rotation.
	UpdateCiphertext(ctx context.Context, id, keyID int64, ciphertext, nonce []byte) error
}
