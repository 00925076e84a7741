package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"pricing-service/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gocloud.dev/postgres"
	_ "gocloud.dev/postgres/awspostgres"
	_ "gocloud.dev/postgres/gcppostgres"
)

// Repository defines the persistence operations consumed by the auth core.
type Repository interface {
	Close() error

	// Admin credentials (backoffice)
	GetAdminByIdentifier(ctx context.Context, identifier string) (*models.AdminCredential, error)
	RecordLoginFailure(ctx context.Context, identifier string, threshold int, lockoutUntil time.Time) error
	RecordLoginSuccess(ctx context.Context, identifier string) error

	// User role records (main application)
	GetUserRole(ctx context.Context, email string) (*models.UserRoleRecord, error)
	InsertUnassignedUser(ctx context.Context, email string, now time.Time) error
	TouchUserLogin(ctx context.Context, email string, now time.Time) error
	ListUserRoles(ctx context.Context) ([]*models.UserRoleRecord, error)
	AssignUserRole(ctx context.Context, email string, role models.Role, assignedBy string) error
	RemoveUserRole(ctx context.Context, email string, removedBy string) error
}

// PostgresRepository handles database operations
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRepository creates a new repository instance
func NewRepository(ctx context.Context, databaseURL string, logger *zap.Logger) (Repository, error) {
	// Retry connection with exponential backoff
	var db *sql.DB
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		db, err = postgres.Open(ctx, databaseURL)
		if err == nil {
			// Test the connection
			if err = db.PingContext(ctx); err == nil {
				break
			}
			db.Close()
		}
		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * time.Second
			logger.Warn("Failed to connect to database, retrying...", zap.Int("attempt", i+1), zap.Duration("wait", waitTime), zap.Error(err))
			time.Sleep(waitTime)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	return &PostgresRepository{
		db:     db,
		logger: logger,
	}, nil
}

// NewRepositoryFromDB wraps an existing connection, for tests.
func NewRepositoryFromDB(db *sql.DB, logger *zap.Logger) Repository {
	return &PostgresRepository{db: db, logger: logger}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// GetAdminByIdentifier retrieves a backoffice credential record.
// Returns (nil, nil) on miss so the caller owns the generic-error response.
func (r *PostgresRepository) GetAdminByIdentifier(ctx context.Context, identifier string) (*models.AdminCredential, error) {
	query := `
		SELECT id, identifier, password_hash, is_active, failed_login_attempts,
		       lockout_until, last_login_at, last_password_change_at, created_at, updated_at
		FROM admin_credentials
		WHERE identifier = $1
	`

	var cred models.AdminCredential
	err := r.db.QueryRowContext(ctx, query, identifier).Scan(
		&cred.ID,
		&cred.Identifier,
		&cred.PasswordHash,
		&cred.IsActive,
		&cred.FailedLoginAttempts,
		&cred.LockoutUntil,
		&cred.LastLoginAt,
		&cred.LastPasswordChangeAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get admin credential", zap.String("identifier", identifier), zap.Error(err))
		return nil, err
	}

	return &cred, nil
}

// RecordLoginFailure increments the failure counter and, when the new count
// reaches threshold, sets the lockout in the same statement. The increment
// and the lockout must land atomically; a two-step read-modify-write would
// race with concurrent attempts.
func (r *PostgresRepository) RecordLoginFailure(ctx context.Context, identifier string, threshold int, lockoutUntil time.Time) error {
	query := `
		UPDATE admin_credentials
		SET failed_login_attempts = failed_login_attempts + 1,
		    lockout_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $3
		        ELSE lockout_until
		    END,
		    updated_at = NOW()
		WHERE identifier = $1
	`
	_, err := r.db.ExecContext(ctx, query, identifier, threshold, lockoutUntil)
	if err != nil {
		r.logger.Error("Failed to record login failure", zap.String("identifier", identifier), zap.Error(err))
		return err
	}
	return nil
}

// RecordLoginSuccess resets the failure counter, clears any lockout, and
// stamps last_login_at in one update.
func (r *PostgresRepository) RecordLoginSuccess(ctx context.Context, identifier string) error {
	query := `
		UPDATE admin_credentials
		SET failed_login_attempts = 0,
		    lockout_until = NULL,
		    last_login_at = NOW(),
		    updated_at = NOW()
		WHERE identifier = $1
	`
	_, err := r.db.ExecContext(ctx, query, identifier)
	if err != nil {
		r.logger.Error("Failed to record login success", zap.String("identifier", identifier), zap.Error(err))
		return err
	}
	return nil
}

// GetUserRole retrieves the role record for an email. A NULL role column is
// mapped to Unassigned. Returns (nil, nil) on miss.
func (r *PostgresRepository) GetUserRole(ctx context.Context, email string) (*models.UserRoleRecord, error) {
	query := `
		SELECT email, role, assigned_by, assigned_at, first_login_at, last_login_at
		FROM user_roles
		WHERE email = $1
	`

	var rec models.UserRoleRecord
	var role sql.NullString
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&rec.Email,
		&role,
		&rec.AssignedBy,
		&rec.AssignedAt,
		&rec.FirstLoginAt,
		&rec.LastLoginAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user role", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	if role.Valid {
		rec.Role = models.ParseRole(role.String)
	} else {
		rec.Role = models.RoleUnassigned
	}

	return &rec, nil
}

// InsertUnassignedUser creates the first-sight record: NULL role, system
// assignment, first and last login stamped. The unique constraint on email
// is the arbiter of concurrent first-sight races; the raw error is returned
// so callers can classify it with IsUniqueViolation.
func (r *PostgresRepository) InsertUnassignedUser(ctx context.Context, email string, now time.Time) error {
	query := `
		INSERT INTO user_roles (email, role, assigned_by, assigned_at, first_login_at, last_login_at)
		VALUES ($1, NULL, 'System', $2, $2, $2)
	`
	_, err := r.db.ExecContext(ctx, query, email, now)
	return err
}

// TouchUserLogin updates last_login_at, and sets first_login_at exactly once.
func (r *PostgresRepository) TouchUserLogin(ctx context.Context, email string, now time.Time) error {
	query := `
		UPDATE user_roles
		SET last_login_at = $2,
		    first_login_at = COALESCE(first_login_at, $2)
		WHERE email = $1
	`
	_, err := r.db.ExecContext(ctx, query, email, now)
	if err != nil {
		r.logger.Error("Failed to touch user login", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

// ListUserRoles returns every role record ever seen.
func (r *PostgresRepository) ListUserRoles(ctx context.Context) ([]*models.UserRoleRecord, error) {
	query := `
		SELECT email, role, assigned_by, assigned_at, first_login_at, last_login_at
		FROM user_roles
		ORDER BY email
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list user roles", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var records []*models.UserRoleRecord
	for rows.Next() {
		var rec models.UserRoleRecord
		var role sql.NullString
		if err := rows.Scan(&rec.Email, &role, &rec.AssignedBy, &rec.AssignedAt, &rec.FirstLoginAt, &rec.LastLoginAt); err != nil {
			r.logger.Error("Failed to scan user role", zap.Error(err))
			return nil, err
		}
		if role.Valid {
			rec.Role = models.ParseRole(role.String)
		} else {
			rec.Role = models.RoleUnassigned
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// AssignUserRole upserts an administrative role assignment.
func (r *PostgresRepository) AssignUserRole(ctx context.Context, email string, role models.Role, assignedBy string) error {
	query := `
		INSERT INTO user_roles (email, role, assigned_by, assigned_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (email) DO UPDATE
		SET role = EXCLUDED.role,
		    assigned_by = EXCLUDED.assigned_by,
		    assigned_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, email, string(role), assignedBy)
	if err != nil {
		r.logger.Error("Failed to assign user role", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

// RemoveUserRole sets the role back to NULL (Unassigned). The row is never
// hard-deleted: first/last login timestamps are the audit trail.
func (r *PostgresRepository) RemoveUserRole(ctx context.Context, email string, removedBy string) error {
	query := `
		UPDATE user_roles
		SET role = NULL,
		    assigned_by = $2,
		    assigned_at = NOW()
		WHERE email = $1
	`
	_, err := r.db.ExecContext(ctx, query, email, removedBy)
	if err != nil {
		r.logger.Error("Failed to remove user role", zap.String("email", email), zap.Error(err))
		return err
	}
	return nil
}

// Postgres error classes used by the provisioner's retry and fallback logic.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

// IsUniqueViolation reports whether err is a uniqueness-constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return false
}

// IsSchemaMissing reports whether err indicates the backing table does not
// exist yet (bootstrap/migration window).
func IsSchemaMissing(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUndefinedTable
	}
	return false
}

// IsTransient reports whether err belongs to the retryable class: timeouts,
// dropped connections, and Postgres connection-exception codes (08xxx).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}
	return false
}
