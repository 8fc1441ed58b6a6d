package profiles

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

type Repository interface {
	Create(ctx context.Context, profile *models.Profile) (*models.Profile, error)
	GetByID(ctx context.Context, id int64) (*models.Profile, error)
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)

	// RegisterFailure increments the failed-attempt counter and sets the
	// lock flag once the counter reaches threshold, in a single atomic
	// statement. It returns the post-increment state.
	RegisterFailure(ctx context.Context, id int64, threshold int) (attempts int, locked bool, err error)

	ResetFailures(ctx context.Context, id int64) error
	Unlock(ctx context.Context, id int64) error
	SetMFASecret(ctx context.Context, id int64, secret string) error
	Delete(ctx context.Context, id int64) error
}
