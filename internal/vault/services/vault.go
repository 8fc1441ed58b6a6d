package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/cryptox"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/strength"
	"github.com/dmitrijs2005/passvault/internal/vault/config"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/repomanager"
)

// EntryWithSecret pairs a stored entry with its decrypted secret. The secret
// exists only in memory for the duration of the call.
type EntryWithSecret struct {
	Entry  *models.Entry
	Secret string
}

// VaultService manages encrypted credential entries and the per-profile key
// lifecycle. All entry access is scoped by the profile behind the session
// token; a foreign entry id is indistinguishable from a missing one.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	crypto      cryptox.Provider
	sessions    *SessionService
	audit       *AuditService
	scorer      strength.Scorer
	keyring     *keyring
	logger      logging.Logger
}

// NewVaultService constructs a VaultService.
func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, crypto cryptox.Provider,
	sessions *SessionService, audit *AuditService, scorer strength.Scorer,
	cfg *config.Config, logger logging.Logger) *VaultService {
	return &VaultService{
		db:          db,
		repomanager: m,
		crypto:      crypto,
		sessions:    sessions,
		audit:       audit,
		scorer:      scorer,
		keyring:     newKeyring(crypto, cfg.ServerSecret),
		logger:      logger,
	}
}

// AddEntry encrypts the secret under the profile's active key and stores a
// new entry.
func (s *VaultService) AddEntry(ctx context.Context, sessionToken, serviceName, loginURL, usernameOrEmail, secret, notes string) (*models.Entry, error) {
	if serviceName == "" || secret == "" {
		return nil, common.ErrorValidation
	}

	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	profile, err := s.repomanager.Profiles(s.db).GetByID(ctx, profileID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	var entry *models.Entry
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		keyRecord, dataKey, err := s.activeKey(ctx, tx, profile)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(dataKey)

		ciphertext, nonce, err := s.crypto.Encrypt(dataKey, []byte(secret))
		if err != nil {
			return common.ErrorInternal
		}

		entry = &models.Entry{
			ProfileID:       profileID,
			KeyID:           keyRecord.ID,
			ServiceName:     serviceName,
			LoginURL:        loginURL,
			UsernameOrEmail: usernameOrEmail,
			Ciphertext:      ciphertext,
			Nonce:           nonce,
			Notes:           notes,
			Strength:        s.scorer.Score(secret),
		}
		created, err := s.repomanager.Entries(tx).Create(ctx, entry)
		if err != nil {
			return err
		}
		entry = created

		return s.audit.Record(ctx, tx, profileID, models.EventPasswordCreated, models.CategoryManagement,
			fmt.Sprintf("entry %d (%s)", entry.ID, serviceName))
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetEntry returns an entry with its decrypted secret and stamps last
// access. Every disclosure of a secret leaves an audit record.
func (s *VaultService) GetEntry(ctx context.Context, sessionToken string, entryID int64) (*EntryWithSecret, error) {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	profile, err := s.repomanager.Profiles(s.db).GetByID(ctx, profileID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	var result *EntryWithSecret
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entry, err := s.repomanager.Entries(tx).GetByID(ctx, entryID, profileID)
		if err != nil {
			return err
		}

		secret, err := s.decryptEntry(ctx, tx, profile, entry)
		if err != nil {
			return err
		}

		if err := s.repomanager.Entries(tx).TouchLastAccessed(ctx, entry.ID); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, profileID, models.EventPasswordAccessed, models.CategoryManagement,
			fmt.Sprintf("entry %d (%s)", entry.ID, entry.ServiceName)); err != nil {
			return err
		}

		result = &EntryWithSecret{Entry: entry, Secret: secret}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListEntries returns the profile's entries without secrets. Listing is not
// a disclosure, so it neither touches last access nor writes an audit event.
func (s *VaultService) ListEntries(ctx context.Context, sessionToken string) ([]*models.Entry, error) {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Entries(s.db).ListByProfile(ctx, profileID)
}

// UpdateEntry rewrites an entry's metadata and, when newSecret is non-empty,
// re-encrypts the secret under the profile's active key and rescores it.
func (s *VaultService) UpdateEntry(ctx context.Context, sessionToken string, entryID int64, serviceName, loginURL, usernameOrEmail, newSecret, notes string) (*models.Entry, error) {
	if serviceName == "" {
		return nil, common.ErrorValidation
	}

	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	profile, err := s.repomanager.Profiles(s.db).GetByID(ctx, profileID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	var updated *models.Entry
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entry, err := s.repomanager.Entries(tx).GetByID(ctx, entryID, profileID)
		if err != nil {
			return err
		}

		entry.ServiceName = serviceName
		entry.LoginURL = loginURL
		entry.UsernameOrEmail = usernameOrEmail
		entry.Notes = notes

		if newSecret != "" {
			keyRecord, dataKey, err := s.activeKey(ctx, tx, profile)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(dataKey)

			ciphertext, nonce, err := s.crypto.Encrypt(dataKey, []byte(newSecret))
			if err != nil {
				return common.ErrorInternal
			}
			entry.KeyID = keyRecord.ID
			entry.Ciphertext = ciphertext
			entry.Nonce = nonce
			entry.Strength = s.scorer.Score(newSecret)
		}

		if err := s.repomanager.Entries(tx).Update(ctx, entry); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, profileID, models.EventPasswordUpdated, models.CategoryManagement,
			fmt.Sprintf("entry %d (%s)", entry.ID, entry.ServiceName)); err != nil {
			return err
		}
		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteEntry removes an entry owned by the session's profile.
func (s *VaultService) DeleteEntry(ctx context.Context, sessionToken string, entryID int64) error {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Entries(tx).Delete(ctx, entryID, profileID); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, profileID, models.EventPasswordDeleted, models.CategoryManagement,
			fmt.Sprintf("entry %d", entryID))
	})
}

// RotateKey replaces the profile's active encryption key and re-encrypts
// every entry under the new key, all in one transaction. At no observable
// point does a profile hold two active keys or an entry reference a key it
// was not encrypted under.
func (s *VaultService) RotateKey(ctx context.Context, sessionToken string) error {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return err
	}
	profile, err := s.repomanager.Profiles(s.db).GetByID(ctx, profileID)
	if err != nil {
		return common.ErrorInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		oldRecord, err := s.repomanager.Keys(tx).GetActive(ctx, profileID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorNoActiveKey
			}
			return err
		}
		oldKey, err := s.keyring.unwrap(profile, oldRecord)
		if err != nil {
			return common.ErrorInternal
		}
		defer common.WipeByteArray(oldKey)

		// deactivate before insert: the partial unique index admits only
		// one active key per profile
		if err := s.repomanager.Keys(tx).Deactivate(ctx, oldRecord.ID); err != nil {
			return err
		}

		newKey, err := s.crypto.GenerateKey()
		if err != nil {
			return common.ErrorInternal
		}
		defer common.WipeByteArray(newKey)

		wrapped, err := s.keyring.wrap(profile, newKey)
		if err != nil {
			return common.ErrorInternal
		}
		newRecord, err := s.repomanager.Keys(tx).Create(ctx, wrapped)
		if err != nil {
			return err
		}

		entries, err := s.repomanager.Entries(tx).ListByProfile(ctx, profileID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.KeyID != oldRecord.ID {
				return common.ErrorNoActiveKey
			}
			plaintext, err := s.crypto.Decrypt(oldKey, entry.Ciphertext, entry.Nonce)
			if err != nil {
				return common.ErrorInternal
			}
			ciphertext, nonce, err := s.crypto.Encrypt(newKey, plaintext)
			common.WipeByteArray(plaintext)
			if err != nil {
				return common.ErrorInternal
			}
			if err := s.repomanager.Entries(tx).UpdateCiphertext(ctx, entry.ID, newRecord.ID, ciphertext, nonce); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, tx, profileID, models.EventKeyRotated, models.CategoryManagement,
			fmt.Sprintf("%d entries re-encrypted", len(entries)))
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "encryption key rotated", "profile_id", profileID)
	return nil
}

// activeKey loads and unwraps the profile's active data key. A profile
// without an active key is in a corrupt state and yields ErrorNoActiveKey.
func (s *VaultService) activeKey(ctx context.Context, db dbx.DBTX, profile *models.Profile) (*models.EncryptionKey, []byte, error) {
	record, err := s.repomanager.Keys(db).GetActive(ctx, profile.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorNoActiveKey
		}
		return nil, nil, err
	}
	dataKey, err := s.keyring.unwrap(profile, record)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}
	return record, dataKey, nil
}

// decryptEntry opens an entry's ciphertext with the key it references.
func (s *VaultService) decryptEntry(ctx context.Context, db dbx.DBTX, profile *models.Profile, entry *models.Entry) (string, error) {
	record, err := s.repomanager.Keys(db).GetActive(ctx, profile.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorNoActiveKey
		}
		return "", err
	}
	if entry.KeyID != record.ID {
		// rotation re-encrypts everything in its own transaction, so a
		// mismatch means the row set is inconsistent
		return "", common.ErrorInternal
	}
	dataKey, err := s.keyring.unwrap(profile, record)
	if err != nil {
		return "", common.ErrorInternal
	}
	defer common.WipeByteArray(dataKey)

	plaintext, err := s.crypto.Decrypt(dataKey, entry.Ciphertext, entry.Nonce)
	if err != nil {
		return "", common.ErrorInternal
	}
	return string(plaintext), nil
}
