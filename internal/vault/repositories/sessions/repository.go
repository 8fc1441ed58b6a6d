package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error

	// DeleteExpired purges sessions whose expiry time is at or before now
	// and returns the number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
