package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/cryptox"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/strength"
	"github.com/dmitrijs2005/passvault/internal/vault/config"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
	backupcodesrepo "github.com/dmitrijs2005/passvault/internal/vault/repositories/backupcodes"
	entriesrepo "github.com/dmitrijs2005/passvault/internal/vault/repositories/entries"
	eventsrepo "github.com/dmitrijs2005/passvault/internal/vault/repositories/events"
	keysrepo "github.com/dmitrijs2005/passvault/internal/vault/repositories/keys"
	profilesrepo "github.com/dmitrijs2005/passvault/internal/vault/repositories/profiles"
	sessionsrepo "github.com/dmitrijs2005/passvault/internal/vault/repositories/sessions"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

// --- stateful fakes ---
//
// The fakes keep real state so multi-step scenarios (lockout, rotation,
// backup-code consumption) exercise the services end to end; transaction
// boundaries are still asserted via sqlmock on the *sql.DB handle.

type fakeProfilesRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Profile
	err    error
}

func newFakeProfilesRepo() *fakeProfilesRepo {
	return &fakeProfilesRepo{byID: map[int64]*models.Profile{}}
}

func (f *fakeProfilesRepo) Create(_ context.Context, p *models.Profile) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Username == p.Username {
			return nil, common.ErrorDuplicateUsername
		}
	}
	f.nextID++
	cp := *p
	cp.ID = f.nextID
	cp.CreatedAt = time.Now()
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeProfilesRepo) GetByID(_ context.Context, id int64) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfilesRepo) GetByUsername(_ context.Context, username string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeProfilesRepo) RegisterFailure(_ context.Context, id int64, threshold int) (int, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return 0, false, common.ErrorNotFound
	}
	p.FailedAttempts++
	if p.FailedAttempts >= threshold {
		p.IsLocked = true
	}
	return p.FailedAttempts, p.IsLocked, nil
}

func (f *fakeProfilesRepo) ResetFailures(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byID[id]; ok {
		p.FailedAttempts = 0
	}
	return nil
}

func (f *fakeProfilesRepo) Unlock(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.IsLocked = false
	p.FailedAttempts = 0
	return nil
}

func (f *fakeProfilesRepo) SetMFASecret(_ context.Context, id int64, secret string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.MFASecret = secret
	return nil
}

func (f *fakeProfilesRepo) Delete(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeKeysRepo struct {
	mu     sync.Mutex
	nextID int64
	keys   []*models.EncryptionKey
	err    error
}

func (f *fakeKeysRepo) Create(_ context.Context, k *models.EncryptionKey) (*models.EncryptionKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *k
	cp.ID = f.nextID
	cp.Active = true
	f.keys = append(f.keys, &cp)
	out := cp
	return &out, nil
}

func (f *fakeKeysRepo) GetActive(_ context.Context, profileID int64) (*models.EncryptionKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.ProfileID == profileID && k.Active {
			cp := *k
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeKeysRepo) Deactivate(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.ID == id && k.Active {
			k.Active = false
			return nil
		}
	}
	return common.ErrorNotFound
}

type fakeEntriesRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Entry
	err    error
}

func newFakeEntriesRepo() *fakeEntriesRepo {
	return &fakeEntriesRepo{byID: map[int64]*models.Entry{}}
}

func (f *fakeEntriesRepo) Create(_ context.Context, e *models.Entry) (*models.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *e
	cp.ID = f.nextID
	cp.CreatedAt = time.Now()
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeEntriesRepo) GetByID(_ context.Context, id, profileID int64) (*models.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok || e.ProfileID != profileID {
		return nil, common.ErrorNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEntriesRepo) ListByProfile(_ context.Context, profileID int64) ([]*models.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Entry
	for id := int64(1); id <= f.nextID; id++ {
		if e, ok := f.byID[id]; ok && e.ProfileID == profileID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeEntriesRepo) Update(_ context.Context, e *models.Entry) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[e.ID]
	if !ok || stored.ProfileID != e.ProfileID {
		return common.ErrorNotFound
	}
	cp := *e
	cp.UpdatedAt = time.Now()
	f.byID[e.ID] = &cp
	return nil
}

func (f *fakeEntriesRepo) Delete(_ context.Context, id, profileID int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok || e.ProfileID != profileID {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeEntriesRepo) TouchLastAccessed(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.byID[id]; ok {
		now := time.Now()
		e.LastAccessed = &now
	}
	return nil
}

func (f *fakeEntriesRepo) UpdateCiphertext(_ context.Context, id, keyID int64, ciphertext, nonce []byte) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	e.KeyID = keyID
	e.Ciphertext = ciphertext
	e.Nonce = nonce
	return nil
}

type fakeBackupCodesRepo struct {
	mu     sync.Mutex
	nextID int64
	codes  []*models.BackupCode
	err    error
}

func (f *fakeBackupCodesRepo) CreateBatch(_ context.Context, codes []*models.BackupCode) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range codes {
		f.nextID++
		cp := *c
		cp.ID = f.nextID
		f.codes = append(f.codes, &cp)
	}
	return nil
}

func (f *fakeBackupCodesRepo) ListUnused(_ context.Context, profileID int64) ([]*models.BackupCode, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.BackupCode
	for _, c := range f.codes {
		if c.ProfileID == profileID && !c.Used {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeBackupCodesRepo) MarkUsed(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c.ID == id && !c.Used {
			c.Used = true
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeBackupCodesRepo) DeleteUnused(_ context.Context, profileID int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.codes[:0]
	for _, c := range f.codes {
		if c.ProfileID != profileID || c.Used {
			kept = append(kept, c)
		}
	}
	f.codes = kept
	return nil
}

type fakeSessionsRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Session
	err  error
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{byID: map[string]*models.Session{}}
}

func (f *fakeSessionsRepo) Create(_ context.Context, s *models.Session) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSessionsRepo) Find(_ context.Context, id string) (*models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionsRepo) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeSessionsRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.byID {
		if !now.Before(s.ExpiryTime) {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

type fakeEventsRepo struct {
	mu     sync.Mutex
	nextID int64
	events []*models.Event
	err    error
}

func (f *fakeEventsRepo) Append(_ context.Context, e *models.Event) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *e
	cp.ID = f.nextID
	cp.EventTime = time.Now()
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeEventsRepo) List(_ context.Context, profileID int64, filter eventsrepo.Filter) ([]*models.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Event
	for _, e := range f.events {
		if e.ProfileID != profileID {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if !filter.Since.IsZero() && e.EventTime.Before(filter.Since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// fakeRepoManager hands out the same fakes regardless of handle.
type fakeRepoManager struct {
	profiles    *fakeProfilesRepo
	keys        *fakeKeysRepo
	entries     *fakeEntriesRepo
	backupCodes *fakeBackupCodesRepo
	sessions    *fakeSessionsRepo
	events      *fakeEventsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		profiles:    newFakeProfilesRepo(),
		keys:        &fakeKeysRepo{},
		entries:     newFakeEntriesRepo(),
		backupCodes: &fakeBackupCodesRepo{},
		sessions:    newFakeSessionsRepo(),
		events:      &fakeEventsRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error          { return nil }
func (m *fakeRepoManager) Profiles(dbx.DBTX) profilesrepo.Repository             { return m.profiles }
func (m *fakeRepoManager) Entries(dbx.DBTX) entriesrepo.Repository               { return m.entries }
func (m *fakeRepoManager) Keys(dbx.DBTX) keysrepo.Repository                     { return m.keys }
func (m *fakeRepoManager) BackupCodes(dbx.DBTX) backupcodesrepo.Repository       { return m.backupCodes }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessionsrepo.Repository             { return m.sessions }
func (m *fakeRepoManager) Events(dbx.DBTX) eventsrepo.Repository                 { return m.events }

// --- wiring helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		ServerSecret:          "test-secret",
		SessionTTL:            time.Hour,
		SessionCacheStaleness: 30 * time.Second,
		SessionSweepInterval:  time.Minute,
		LockoutThreshold:      3,
		BackupCodeCount:       4,
		MFAIssuer:             "passvault-test",
		S3Region:              "us-east-1",
		S3RootUser:            "minioadmin",
		S3RootPassword:        "minioadmin",
		S3Bucket:              "passvault",
		S3BaseEndpoint:        "http://127.0.0.1:9000",
	}
}

type testServices struct {
	rm        *fakeRepoManager
	cfg       *config.Config
	accounts  *AccountService
	vault     *VaultService
	sessions  *SessionService
	audit     *AuditService
	snapshots *SnapshotService
}

func newTestServices(t *testing.T, db *sql.DB) *testServices {
	t.Helper()
	rm := newFakeRepoManager()
	cfg := testConfig()
	crypto := cryptox.NewAESGCMProvider()
	logger := nopLogger{}

	audit := NewAuditService(db, rm)
	sessions := NewSessionService(db, rm, audit, cfg, logger)
	accounts := NewAccountService(db, rm, crypto, sessions, audit, cfg, logger)
	vault := NewVaultService(db, rm, crypto, sessions, audit, strength.NewLengthScorer(), cfg, logger)
	snapshots := NewSnapshotService(db, rm, sessions, audit, cfg, logger)

	return &testServices{rm: rm, cfg: cfg, accounts: accounts, vault: vault,
		sessions: sessions, audit: audit, snapshots: snapshots}
}

func eventFilter(eventType string) eventsrepo.Filter {
	return eventsrepo.Filter{EventType: eventType}
}

// expectTxCommits queues n begin/commit pairs.
func expectTxCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}
