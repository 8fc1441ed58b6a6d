package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pquerna/otp/totp"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/cryptox"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/vault/config"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/repomanager"
)

// backupCodeBytes is the entropy of one backup code; hex-encoded it yields a
// 10-character code.
const backupCodeBytes = 5

// AccountService handles profile lifecycle and authentication:
//   - Register / DeleteProfile
//   - Authenticate with lockout policy and optional TOTP enforcement
//   - backup-code fallback authentication
//   - MFA secret and backup-code management
//   - administrative unlock
//
// The lockout state machine per profile is Active -> Locked after
// LockoutThreshold consecutive failures, and Locked -> Active only through
// Unlock. A success from Active resets the counter without a transition.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	crypto      cryptox.Provider
	sessions    *SessionService
	audit       *AuditService
	logger      logging.Logger
	keyring     *keyring

	lockoutThreshold int
	backupCodeCount  int
	mfaIssuer        string
}

// NewAccountService constructs an AccountService.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, crypto cryptox.Provider,
	sessions *SessionService, audit *AuditService, cfg *config.Config, logger logging.Logger) *AccountService {
	return &AccountService{
		db:               db,
		repomanager:      m,
		crypto:           crypto,
		sessions:         sessions,
		audit:            audit,
		logger:           logger,
		keyring:          newKeyring(crypto, cfg.ServerSecret),
		lockoutThreshold: cfg.LockoutThreshold,
		backupCodeCount:  cfg.BackupCodeCount,
		mfaIssuer:        cfg.MFAIssuer,
	}
}

// Register creates a profile together with its first active encryption key.
// A taken username yields common.ErrorDuplicateUsername.
func (s *AccountService) Register(ctx context.Context, username, masterPassword, secretQuestion, secretAnswer string) (*models.Profile, error) {
	if username == "" || masterPassword == "" {
		return nil, common.ErrorValidation
	}

	digest, salt, err := s.crypto.HashSecret([]byte(masterPassword))
	if err != nil {
		return nil, common.ErrorInternal
	}

	profile := &models.Profile{
		Username:       username,
		PasswordHash:   digest,
		Salt:           salt,
		SecretQuestion: secretQuestion,
	}

	if secretAnswer != "" {
		answerDigest, answerSalt, err := s.crypto.HashSecret([]byte(secretAnswer))
		if err != nil {
			return nil, common.ErrorInternal
		}
		profile.AnswerHash = answerDigest
		profile.AnswerSalt = answerSalt
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Profiles(tx).Create(ctx, profile)
		if err != nil {
			return err
		}
		profile = created

		dataKey, err := s.crypto.GenerateKey()
		if err != nil {
			return common.ErrorInternal
		}
		defer common.WipeByteArray(dataKey)

		record, err := s.keyring.wrap(profile, dataKey)
		if err != nil {
			return common.ErrorInternal
		}
		if _, err := s.repomanager.Keys(tx).Create(ctx, record); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, profile.ID, models.EventNewUser, models.CategoryManagement, "profile registered")
	})
	if err != nil {
		if errors.Is(err, common.ErrorDuplicateUsername) {
			return nil, common.ErrorDuplicateUsername
		}
		return nil, err
	}

	s.logger.Info(ctx, "profile registered", "profile_id", profile.ID)
	return profile, nil
}

// Authenticate verifies the master password (and a TOTP code when the
// profile has an MFA secret) and mints a session. A locked account is
// rejected before any verification; failures are counted atomically and the
// account locks once the threshold is reached.
func (s *AccountService) Authenticate(ctx context.Context, username, masterPassword, mfaCode string) (string, *models.Session, error) {
	profile, err := s.repomanager.Profiles(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// burn comparable work so an unknown username is not
			// distinguishable by timing
			s.crypto.VerifySecret([]byte(masterPassword), nil, common.GenerateRandByteArray(cryptox.SaltLength))
			return "", nil, common.ErrorInvalidCredentials
		}
		return "", nil, common.ErrorInternal
	}

	if profile.IsLocked {
		return "", nil, common.ErrorAccountLocked
	}

	if !s.crypto.VerifySecret([]byte(masterPassword), profile.PasswordHash, profile.Salt) {
		if err := s.registerFailure(ctx, profile.ID, "wrong master password"); err != nil {
			return "", nil, err
		}
		return "", nil, common.ErrorInvalidCredentials
	}

	if profile.MFASecret != "" && !totp.Validate(mfaCode, profile.MFASecret) {
		if err := s.registerFailure(ctx, profile.ID, "wrong mfa code"); err != nil {
			return "", nil, err
		}
		return "", nil, common.ErrorInvalidMFACode
	}

	return s.openSession(ctx, profile.ID, models.EventLogin, "password login")
}

// AuthenticateWithBackupCode authenticates via an unused backup code and
// consumes it atomically with the success. A used code never validates
// again.
func (s *AccountService) AuthenticateWithBackupCode(ctx context.Context, username, code string) (string, *models.Session, error) {
	profile, err := s.repomanager.Profiles(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil, common.ErrorInvalidBackupCode
		}
		return "", nil, common.ErrorInternal
	}

	if profile.IsLocked {
		return "", nil, common.ErrorAccountLocked
	}

	unused, err := s.repomanager.BackupCodes(s.db).ListUnused(ctx, profile.ID)
	if err != nil {
		return "", nil, common.ErrorInternal
	}

	var matched *models.BackupCode
	for _, c := range unused {
		if s.crypto.VerifySecret([]byte(code), c.CodeHash, c.Salt) {
			matched = c
			break
		}
	}
	if matched == nil {
		if err := s.registerFailure(ctx, profile.ID, "invalid backup code"); err != nil {
			return "", nil, err
		}
		return "", nil, common.ErrorInvalidBackupCode
	}

	var token string
	var session *models.Session
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// the used-flag transition happens in the same transaction as
		// the session mint; losing the race yields ErrorNotFound here
		if err := s.repomanager.BackupCodes(tx).MarkUsed(ctx, matched.ID); err != nil {
			return err
		}
		if err := s.repomanager.Profiles(tx).ResetFailures(ctx, profile.ID); err != nil {
			return err
		}
		var createErr error
		token, session, createErr = s.sessions.Create(ctx, tx, profile.ID)
		if createErr != nil {
			return createErr
		}
		return s.audit.Record(ctx, tx, profile.ID, models.EventBackupCodeLogin, models.CategoryAuthentication, "backup code consumed")
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil, common.ErrorInvalidBackupCode
		}
		return "", nil, err
	}

	return token, session, nil
}

// GenerateBackupCodes issues a fresh batch, invalidating any unused codes
// from earlier batches. The plaintext codes are returned exactly once; only
// hashes are stored.
func (s *AccountService) GenerateBackupCodes(ctx context.Context, sessionToken string) ([]string, error) {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	plaintext := make([]string, 0, s.backupCodeCount)
	codes := make([]*models.BackupCode, 0, s.backupCodeCount)
	for i := 0; i < s.backupCodeCount; i++ {
		code, err := common.MakeRandHexString(backupCodeBytes)
		if err != nil {
			return nil, common.ErrorInternal
		}
		digest, salt, err := s.crypto.HashSecret([]byte(code))
		if err != nil {
			return nil, common.ErrorInternal
		}
		plaintext = append(plaintext, code)
		codes = append(codes, &models.BackupCode{ProfileID: profileID, CodeHash: digest, Salt: salt})
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.BackupCodes(tx).DeleteUnused(ctx, profileID); err != nil {
			return err
		}
		if err := s.repomanager.BackupCodes(tx).CreateBatch(ctx, codes); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, profileID, models.EventBackupCodes, models.CategoryManagement,
			fmt.Sprintf("%d codes issued", len(codes)))
	})
	if err != nil {
		return nil, err
	}

	return plaintext, nil
}

// SetMFASecret generates and persists a TOTP secret for the session's
// profile and returns the secret plus its provisioning URL. Once stored,
// the secret is enforced on every subsequent password authentication.
func (s *AccountService) SetMFASecret(ctx context.Context, sessionToken string) (secret, url string, err error) {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return "", "", err
	}

	profile, err := s.repomanager.Profiles(s.db).GetByID(ctx, profileID)
	if err != nil {
		return "", "", common.ErrorInternal
	}
	if profile.MFASecret != "" {
		return "", "", common.ErrorMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.mfaIssuer,
		AccountName: profile.Username,
	})
	if err != nil {
		return "", "", common.ErrorInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Profiles(tx).SetMFASecret(ctx, profileID, key.Secret()); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, profileID, models.EventMFAEnabled, models.CategoryManagement, "totp secret stored")
	})
	if err != nil {
		return "", "", err
	}

	return key.Secret(), key.URL(), nil
}

// VerifyMFA checks a TOTP code against the stored secret without opening a
// session; used by callers to confirm enrollment.
func (s *AccountService) VerifyMFA(ctx context.Context, sessionToken, code string) (bool, error) {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return false, err
	}
	profile, err := s.repomanager.Profiles(s.db).GetByID(ctx, profileID)
	if err != nil {
		return false, common.ErrorInternal
	}
	if profile.MFASecret == "" {
		return false, common.ErrorValidation
	}
	return totp.Validate(code, profile.MFASecret), nil
}

// VerifySecretAnswer checks the stored secret answer. This is a legacy
// recovery factor: a positive result grants nothing by itself, it only
// informs an operator's decision to unlock.
func (s *AccountService) VerifySecretAnswer(ctx context.Context, username, answer string) (bool, error) {
	profile, err := s.repomanager.Profiles(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, common.ErrorInternal
	}
	if len(profile.AnswerHash) == 0 {
		return false, nil
	}
	return s.crypto.VerifySecret([]byte(answer), profile.AnswerHash, profile.AnswerSalt), nil
}

// Unlock is the administrative path out of the Locked state: it clears the
// lock flag and the failure counter.
func (s *AccountService) Unlock(ctx context.Context, profileID int64) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Profiles(tx).Unlock(ctx, profileID); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, profileID, models.EventAccountUnlocked, models.CategoryManagement, "admin unlock")
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "profile unlocked", "profile_id", profileID)
	return nil
}

// DeleteProfile removes the session's profile. Entries, keys, backup codes,
// sessions and audit events all go with it via cascade.
func (s *AccountService) DeleteProfile(ctx context.Context, sessionToken string) error {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return err
	}
	if err := s.repomanager.Profiles(s.db).Delete(ctx, profileID); err != nil {
		return err
	}
	// the audit trail is gone with the profile; leave an operational trace
	s.logger.Info(ctx, "profile deleted", "profile_id", profileID)
	return nil
}

// registerFailure counts one failed attempt and audits the outcome. The
// increment and the threshold comparison happen in one statement on the
// profile row, so concurrent failures serialize; the transaction retries on
// transient conflicts because a failure must never go uncounted.
func (s *AccountService) registerFailure(ctx context.Context, profileID int64, reason string) error {
	return dbx.WithRetry(ctx, func(ctx context.Context) error {
		return s.registerFailureTx(ctx, profileID, reason)
	})
}

func (s *AccountService) registerFailureTx(ctx context.Context, profileID int64, reason string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		attempts, locked, err := s.repomanager.Profiles(tx).RegisterFailure(ctx, profileID, s.lockoutThreshold)
		if err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, profileID, models.EventLoginFailed, models.CategoryAuthentication, reason); err != nil {
			return err
		}
		if locked && attempts == s.lockoutThreshold {
			if err := s.audit.Record(ctx, tx, profileID, models.EventAccountLocked, models.CategoryAuthentication,
				fmt.Sprintf("after %d failed attempts", attempts)); err != nil {
				return err
			}
			s.logger.Warn(ctx, "account locked", "profile_id", profileID, "attempts", attempts)
		}
		return nil
	})
}

// openSession resets the failure counter, mints a session and audits the
// login, all in one transaction.
func (s *AccountService) openSession(ctx context.Context, profileID int64, eventType, details string) (string, *models.Session, error) {
	var token string
	var session *models.Session
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Profiles(tx).ResetFailures(ctx, profileID); err != nil {
			return err
		}
		var createErr error
		token, session, createErr = s.sessions.Create(ctx, tx, profileID)
		if createErr != nil {
			return createErr
		}
		return s.audit.Record(ctx, tx, profileID, eventType, models.CategoryAuthentication, details)
	})
	if err != nil {
		return "", nil, err
	}
	return token, session, nil
}
