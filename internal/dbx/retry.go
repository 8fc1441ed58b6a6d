package dbx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// IsTransient reports whether err is a transient PostgreSQL failure worth
// retrying: connection errors (class 08), serialization/deadlock failures
// (40001, 40P01) and lock timeouts (55P03). Anything else is treated as
// permanent for the current operation.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
}

// WithRetry runs fn, retrying with exponential backoff while fn fails with a
// transient storage error. Permanent errors and context cancellation stop the
// retries immediately; the last error is returned.
func WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}
