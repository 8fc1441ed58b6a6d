package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/vault/auth"
	"github.com/dmitrijs2005/passvault/internal/vault/config"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/repomanager"
)

// cachedSession is one validation-cache slot. checkedAt bounds how stale the
// cached row may be before it is re-read from storage.
type cachedSession struct {
	profileID int64
	expiry    time.Time
	checkedAt time.Time
}

// SessionService issues, validates, refreshes and revokes sessions.
//
// The session row is authoritative. Validation is read-mostly, so rows are
// served from a small in-memory cache with a bounded staleness window; a
// revocation observed by this instance invalidates its cache slot
// immediately, other instances converge within the staleness window.
// Sessions are never extended implicitly: Refresh issues a new token and
// revokes the old one.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	audit       *AuditService
	logger      logging.Logger
	secret      []byte
	ttl         time.Duration
	staleness   time.Duration
	sweepEvery  time.Duration

	mu    sync.Mutex
	cache map[string]cachedSession

	// now is a seam for tests.
	now func() time.Time
}

// NewSessionService constructs a SessionService from server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, audit *AuditService, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		audit:       audit,
		logger:      logger,
		secret:      []byte(cfg.ServerSecret),
		ttl:         cfg.SessionTTL,
		staleness:   cfg.SessionCacheStaleness,
		sweepEvery:  cfg.SessionSweepInterval,
		cache:       make(map[string]cachedSession),
		now:         time.Now,
	}
}

// Create mints a session for profileID using the provided handle and returns
// the signed token plus the stored row. The random uuid session id makes the
// token unguessable even before the signature is checked.
func (s *SessionService) Create(ctx context.Context, db dbx.DBTX, profileID int64) (string, *models.Session, error) {
	now := s.now()
	session := &models.Session{
		ID:         uuid.NewString(),
		ProfileID:  profileID,
		StartTime:  now,
		ExpiryTime: now.Add(s.ttl),
	}

	if err := s.repomanager.Sessions(db).Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("error creating session: %w", err)
	}

	token, err := auth.GenerateToken(session.ID, s.secret, session.ExpiryTime)
	if err != nil {
		return "", nil, common.ErrorInternal
	}
	return token, session, nil
}

// Validate returns the profile id behind a token. Expired sessions are
// rejected lazily and their rows removed; missing or revoked sessions yield
// common.ErrorSessionNotFound.
func (s *SessionService) Validate(ctx context.Context, token string) (int64, error) {
	id, err := auth.GetSessionIDFromToken(token, s.secret)
	if err != nil {
		if errors.Is(err, common.ErrorSessionExpired) {
			return 0, common.ErrorSessionExpired
		}
		return 0, common.ErrorSessionNotFound
	}

	now := s.now()

	s.mu.Lock()
	cached, ok := s.cache[id]
	s.mu.Unlock()
	if ok && now.Sub(cached.checkedAt) < s.staleness {
		if now.Before(cached.expiry) {
			return cached.profileID, nil
		}
		s.invalidate(id)
		return 0, common.ErrorSessionExpired
	}

	session, err := s.repomanager.Sessions(s.db).Find(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.invalidate(id)
			return 0, common.ErrorSessionNotFound
		}
		return 0, fmt.Errorf("error loading session: %w", err)
	}

	if !now.Before(session.ExpiryTime) {
		s.invalidate(id)
		if err := s.repomanager.Sessions(s.db).Delete(ctx, id); err != nil && !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "failed to remove expired session", "error", err)
		}
		return 0, common.ErrorSessionExpired
	}

	s.mu.Lock()
	s.cache[id] = cachedSession{profileID: session.ProfileID, expiry: session.ExpiryTime, checkedAt: now}
	s.mu.Unlock()

	return session.ProfileID, nil
}

// Refresh validates the old token, then atomically revokes its session and
// issues a fresh one for the same profile.
func (s *SessionService) Refresh(ctx context.Context, token string) (string, *models.Session, error) {
	id, err := auth.GetSessionIDFromToken(token, s.secret)
	if err != nil {
		if errors.Is(err, common.ErrorSessionExpired) {
			return "", nil, common.ErrorSessionExpired
		}
		return "", nil, common.ErrorSessionNotFound
	}

	old, err := s.repomanager.Sessions(s.db).Find(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil, common.ErrorSessionNotFound
		}
		return "", nil, fmt.Errorf("error loading session: %w", err)
	}
	if !s.now().Before(old.ExpiryTime) {
		return "", nil, common.ErrorSessionExpired
	}

	var newToken string
	var session *models.Session
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Sessions(tx).Delete(ctx, id); err != nil {
			return fmt.Errorf("error revoking session: %w", err)
		}
		var createErr error
		newToken, session, createErr = s.Create(ctx, tx, old.ProfileID)
		return createErr
	})
	if err != nil {
		return "", nil, err
	}

	s.invalidate(id)
	return newToken, session, nil
}

// Revoke deletes the session behind the token and audits the revocation.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	id, err := auth.GetSessionIDFromToken(token, s.secret)
	if err != nil {
		return common.ErrorSessionNotFound
	}

	defer s.invalidate(id)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		session, err := s.repomanager.Sessions(tx).Find(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repomanager.Sessions(tx).Delete(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, session.ProfileID, models.EventSessionRevoked, models.CategoryAuthentication, "explicit logout")
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorSessionNotFound
		}
		return fmt.Errorf("error revoking session: %w", err)
	}
	return nil
}

// PurgeExpired removes all sessions whose expiry has passed.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repomanager.Sessions(s.db).DeleteExpired(ctx, s.now())
}

// StartSweeper runs the eager purge loop until ctx is cancelled.
func (s *SessionService) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var n int64
			err := dbx.WithRetry(ctx, func(ctx context.Context) error {
				var purgeErr error
				n, purgeErr = s.PurgeExpired(ctx)
				return purgeErr
			})
			if err != nil {
				s.logger.Warn(ctx, "session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug(ctx, "purged expired sessions", "count", n)
			}
		}
	}
}

func (s *SessionService) invalidate(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}
