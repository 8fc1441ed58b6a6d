package events

import (
	"context"
	"time"

	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

// Filter narrows a List call. Zero values mean "no restriction".
type Filter struct {
	EventType string
	Category  string
	Since     time.Time
	Limit     int
}

type Repository interface {
	// Append adds one audit record. There is no update or single-row
	// delete: the log only grows, or disappears with its profile.
	Append(ctx context.Context, event *models.Event) error

	// List returns the profile's events ordered ascending by event time,
	// with ids as the tiebreaker, so repeated calls yield the same
	// authoritative sequence.
	List(ctx context.Context, profileID int64, filter Filter) ([]*models.Event, error)
}
