package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/vault/config"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
	"github.com/dmitrijs2005/passvault/internal/vault/repositories/repomanager"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// snapshot is the exported document. Secrets stay ciphertext and the data
// key stays wrapped, so the object store never holds usable material.
type snapshot struct {
	Version    int                  `json:"version"`
	ProfileID  int64                `json:"profile_id"`
	Username   string               `json:"username"`
	ExportedAt time.Time            `json:"exported_at"`
	Key        snapshotKey          `json:"key"`
	Entries    []*snapshotEntry     `json:"entries"`
}

type snapshotKey struct {
	ID         int64  `json:"id"`
	WrappedKey []byte `json:"wrapped_key"`
	Nonce      []byte `json:"nonce"`
}

type snapshotEntry struct {
	ID              int64  `json:"id"`
	KeyID           int64  `json:"key_id"`
	ServiceName     string `json:"service_name"`
	LoginURL        string `json:"login_url"`
	UsernameOrEmail string `json:"username_or_email"`
	Ciphertext      []byte `json:"ciphertext"`
	Nonce           []byte `json:"nonce"`
	Notes           string `json:"notes"`
}

// SnapshotService exports an encrypted vault snapshot to S3-compatible
// object storage.
type SnapshotService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    *SessionService
	audit       *AuditService
	config      *config.Config
	logger      logging.Logger
}

// NewSnapshotService constructs a SnapshotService.
func NewSnapshotService(db *sql.DB, m repomanager.RepositoryManager, sessions *SessionService,
	audit *AuditService, cfg *config.Config, logger logging.Logger) *SnapshotService {
	return &SnapshotService{
		db:          db,
		repomanager: m,
		sessions:    sessions,
		audit:       audit,
		config:      cfg,
		logger:      logger,
	}
}

func snapshotStorageKey(profileID int64) string {
	d := time.Now()
	return fmt.Sprintf("snapshots/%d/%d/%d/%d/%v", profileID, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *SnapshotService) getClient() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	}), nil
}

// ExportSnapshot uploads the profile's vault as a single JSON object and
// returns the storage key. The snapshot rows are read in one transaction so
// the document is a consistent cut; the upload happens outside of it.
func (s *SnapshotService) ExportSnapshot(ctx context.Context, sessionToken string) (string, error) {
	profileID, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return "", err
	}

	doc := &snapshot{Version: 1, ProfileID: profileID, ExportedAt: time.Now().UTC()}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		profile, err := s.repomanager.Profiles(tx).GetByID(ctx, profileID)
		if err != nil {
			return err
		}
		doc.Username = profile.Username

		key, err := s.repomanager.Keys(tx).GetActive(ctx, profileID)
		if err != nil {
			return common.ErrorNoActiveKey
		}
		doc.Key = snapshotKey{ID: key.ID, WrappedKey: key.WrappedKey, Nonce: key.Nonce}

		entries, err := s.repomanager.Entries(tx).ListByProfile(ctx, profileID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			doc.Entries = append(doc.Entries, &snapshotEntry{
				ID:              e.ID,
				KeyID:           e.KeyID,
				ServiceName:     e.ServiceName,
				LoginURL:        e.LoginURL,
				UsernameOrEmail: e.UsernameOrEmail,
				Ciphertext:      e.Ciphertext,
				Nonce:           e.Nonce,
				Notes:           e.Notes,
			})
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", common.ErrorInternal
	}

	client, err := s.getClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	storageKey := snapshotStorageKey(profileID)
	contentType := "application/json"

	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &storageKey,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	}); err != nil {
		return "", fmt.Errorf("snapshot upload: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.audit.Record(ctx, tx, profileID, models.EventVaultExported, models.CategoryManagement,
			fmt.Sprintf("snapshot %s (%d entries)", storageKey, len(doc.Entries)))
	})
	if err != nil {
		return "", err
	}

	s.logger.Info(ctx, "snapshot exported", "profile_id", profileID, "storage_key", storageKey)
	return storageKey, nil
}
