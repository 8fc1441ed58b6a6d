package profiles

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/vault/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now)
	mock.ExpectQuery(`INSERT INTO profiles`).
		WithArgs("alice", []byte("hash"), []byte("salt"), "pet", []byte(nil), []byte(nil)).
		WillReturnRows(rows)

	p := &models.Profile{Username: "alice", PasswordHash: []byte("hash"), Salt: []byte("salt"), SecretQuestion: "pet"}
	got, err := repo.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 7 || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestCreate_DuplicateUsername(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO profiles`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := repo.Create(context.Background(), &models.Profile{Username: "alice"})
	if !errors.Is(err, common.ErrorDuplicateUsername) {
		t.Fatalf("want ErrorDuplicateUsername, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO profiles`).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Profile{Username: "alice"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func profileRows(id int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "password_hash", "salt", "secret_question",
		"answer_hash", "answer_salt", "mfa_secret", "failed_attempts", "is_locked", "created_at",
	}).AddRow(id, "alice", []byte("hash"), []byte("salt"), "pet",
		[]byte(nil), []byte(nil), "", 2, false, time.Now())
}

func TestGetByUsername_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM profiles\s+WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(profileRows(7))

	got, err := repo.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername error: %v", err)
	}
	if got.ID != 7 || got.Username != "alice" || got.FailedAttempts != 2 {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestGetByUsername_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM profiles\s+WHERE username = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM profiles\s+WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(profileRows(7))

	got, err := repo.GetByID(context.Background(), 7)
	if err != nil || got.ID != 7 {
		t.Fatalf("GetByID: got (%+v, %v)", got, err)
	}
}

func TestRegisterFailure_LocksAtThreshold(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"failed_attempts", "is_locked"}).AddRow(5, true)
	mock.ExpectQuery(`failed_attempts = failed_attempts \+ 1`).
		WithArgs(int64(7), 5).
		WillReturnRows(rows)

	attempts, locked, err := repo.RegisterFailure(context.Background(), 7, 5)
	if err != nil {
		t.Fatalf("RegisterFailure error: %v", err)
	}
	if attempts != 5 || !locked {
		t.Fatalf("unexpected state: attempts=%d locked=%v", attempts, locked)
	}
}

func TestRegisterFailure_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`failed_attempts = failed_attempts \+ 1`).
		WithArgs(int64(404), 5).
		WillReturnError(sql.ErrNoRows)

	_, _, err := repo.RegisterFailure(context.Background(), 404, 5)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestResetFailures(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`SET failed_attempts = 0 WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ResetFailures(context.Background(), 7); err != nil {
		t.Fatalf("ResetFailures error: %v", err)
	}
}

func TestUnlock_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`SET is_locked = FALSE, failed_attempts = 0`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Unlock(context.Background(), 7); err != nil {
		t.Fatalf("Unlock error: %v", err)
	}
}

func TestUnlock_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`SET is_locked = FALSE, failed_attempts = 0`).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Unlock(context.Background(), 404); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestSetMFASecret(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`SET mfa_secret = \$2`).
		WithArgs(int64(7), "TOTPSECRET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetMFASecret(context.Background(), 7, "TOTPSECRET"); err != nil {
		t.Fatalf("SetMFASecret error: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM profiles WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 404); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}
