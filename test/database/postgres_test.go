package database_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"pricing-service/internal/database"
	"pricing-service/internal/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRepo(t *testing.T) (database.Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewRepositoryFromDB(db, zap.NewNop()), mock
}

func adminColumns() []string {
	return []string{
		"id", "identifier", "password_hash", "is_active", "failed_login_attempts",
		"lockout_until", "last_login_at", "last_password_change_at", "created_at", "updated_at",
	}
}

func TestGetAdminByIdentifier(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM admin_credentials`).
		WithArgs("ops").
		WillReturnRows(sqlmock.NewRows(adminColumns()).
			AddRow(1, "ops", "$2a$hash", true, 2, nil, nil, nil, now, now))

	cred, err := repo.GetAdminByIdentifier(context.Background(), "ops")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "ops", cred.Identifier)
	assert.Equal(t, 2, cred.FailedLoginAttempts)
	assert.True(t, cred.IsActive)
	assert.Nil(t, cred.LockoutUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAdminByIdentifierMissIsNilNil(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM admin_credentials`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(adminColumns()))

	cred, err := repo.GetAdminByIdentifier(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, cred)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLoginFailure(t *testing.T) {
	repo, mock := newRepo(t)
	until := time.Now().Add(15 * time.Minute)

	mock.ExpectExec(`UPDATE admin_credentials`).
		WithArgs("ops", 5, until).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordLoginFailure(context.Background(), "ops", 5, until))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLoginSuccess(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE admin_credentials`).
		WithArgs("ops").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordLoginSuccess(context.Background(), "ops"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func roleColumns() []string {
	return []string{"email", "role", "assigned_by", "assigned_at", "first_login_at", "last_login_at"}
}

func TestGetUserRoleMapsNullToUnassigned(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM user_roles`).
		WithArgs("new@corp.example").
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow("new@corp.example", nil, "System", now, now, now))

	rec, err := repo.GetUserRole(context.Background(), "new@corp.example")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.RoleUnassigned, rec.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserRole(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM user_roles`).
		WithArgs("exec@corp.example").
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow("exec@corp.example", "Executive", "admin@corp.example", now, now, now))

	rec, err := repo.GetUserRole(context.Background(), "exec@corp.example")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.RoleExecutive, rec.Role)
	assert.Equal(t, "admin@corp.example", rec.AssignedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUnassignedUserReturnsRawError(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()
	dup := &pq.Error{Code: "23505"}

	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs("new@corp.example", now).
		WillReturnError(dup)

	err := repo.InsertUnassignedUser(context.Background(), "new@corp.example", now)
	require.Error(t, err)
	// Classification happens at the caller; the repo must not swallow it.
	assert.True(t, database.IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchUserLogin(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE user_roles`).
		WithArgs("exec@corp.example", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TouchUserLogin(context.Background(), "exec@corp.example", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUserRoles(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM user_roles`).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow("a@corp.example", "Sales", "System", now, now, now).
			AddRow("b@corp.example", nil, "System", now, nil, nil))

	records, err := repo.ListUserRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.RoleSales, records[0].Role)
	assert.Equal(t, models.RoleUnassigned, records[1].Role)
	assert.Nil(t, records[1].FirstLoginAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignUserRole(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs("exec@corp.example", "Executive", "admin@corp.example").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AssignUserRole(context.Background(), "exec@corp.example", models.RoleExecutive, "admin@corp.example"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveUserRole(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE user_roles`).
		WithArgs("exec@corp.example", "admin@corp.example").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RemoveUserRole(context.Background(), "exec@corp.example", "admin@corp.example"))
	require.NoError(t, mock.ExpectationsWereMet())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		unique    bool
		schema    bool
		transient bool
	}{
		{"nil", nil, false, false, false},
		{"unique violation", &pq.Error{Code: "23505"}, true, false, false},
		{"undefined table", &pq.Error{Code: "42P01"}, false, true, false},
		{"connection exception", &pq.Error{Code: "08006"}, false, false, true},
		{"deadline exceeded", context.DeadlineExceeded, false, false, true},
		{"bad conn", driver.ErrBadConn, false, false, true},
		{"net timeout", timeoutErr{}, false, false, true},
		{"plain error", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, database.IsUniqueViolation(tt.err))
			assert.Equal(t, tt.schema, database.IsSchemaMissing(tt.err))
			assert.Equal(t, tt.transient, database.IsTransient(tt.err))
		})
	}
}
