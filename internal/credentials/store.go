package credentials

import (
	"context"
	stderrors "errors"
	"time"

	"pricing-service/internal/audit"
	"pricing-service/internal/database"
	"pricing-service/internal/models"
	"pricing-service/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch marks rejections caused by an actual failed hash
// comparison, as opposed to account-state rejections. Callers use it to
// decide whether to count the attempt against the rate-limit window.
var ErrPasswordMismatch = stderrors.New("credentials: password mismatch")

// Store verifies backoffice credentials and drives the per-record lockout
// state machine: Active -> (failures accumulate) -> Locked -> (lockout
// expires) -> Active, with Disabled as an independent administrative state.
type Store struct {
	repo             database.Repository
	auditLog         audit.Log
	logger           *zap.Logger
	bcryptCost       int
	failureThreshold int
	lockoutDuration  time.Duration
	now              func() time.Time
}

// NewStore creates a credential store. bcryptCost applies to HashPassword
// only; verification derives the cost from the stored hash.
func NewStore(repo database.Repository, auditLog audit.Log, logger *zap.Logger, bcryptCost, failureThreshold int, lockoutDuration time.Duration) *Store {
	return &Store{
		repo:             repo,
		auditLog:         auditLog,
		logger:           logger,
		bcryptCost:       bcryptCost,
		failureThreshold: failureThreshold,
		lockoutDuration:  lockoutDuration,
		now:              time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Verify checks identifier/password against the credential table. Failed
// attempts mutate state (counter increment, conditional lockout); success
// mutates nothing here — the caller invokes MarkSuccess after token
// issuance, so a failed comparison can never reach the success mutation.
//
// A lookup miss and a wrong password both return ErrInvalidCredentials: the
// response must not be an enumeration oracle. Disabled and locked accounts
// are surfaced distinctly — account state is not a secret. Store failures
// are returned raw for the handler to translate.
func (s *Store) Verify(ctx context.Context, identifier, password string) (*models.AdminCredential, error) {
	now := s.now()

	cred, err := s.repo.GetAdminByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		// Internal log keeps the real reason; the response stays generic.
		s.record(ctx, identifier, "unknown_identifier")
		return nil, errors.ErrInvalidCredentials
	}

	if !cred.IsActive {
		// Short-circuit before the hash comparison; disabled wins over
		// password correctness. Logging still happens.
		s.record(ctx, identifier, "disabled")
		return nil, errors.ErrAccountDisabled
	}

	if remaining := cred.LockedFor(now); remaining > 0 {
		// No password comparison while locked.
		s.record(ctx, identifier, "locked")
		return nil, errors.WithMessage(errors.ErrAccountLocked,
			"Account is temporarily locked, try again in "+remaining.Round(time.Second).String())
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		// Increment and conditional lockout land in a single statement.
		if dbErr := s.repo.RecordLoginFailure(ctx, identifier, s.failureThreshold, now.Add(s.lockoutDuration)); dbErr != nil {
			s.logger.Error("Failed to persist login failure", zap.Error(dbErr))
			return nil, dbErr
		}
		s.record(ctx, identifier, "wrong_password")
		if cred.FailedLoginAttempts+1 >= s.failureThreshold {
			return nil, errors.Wrap(ErrPasswordMismatch, errors.ErrAccountLocked)
		}
		return nil, errors.Wrap(ErrPasswordMismatch, errors.ErrInvalidCredentials)
	}

	return cred, nil
}

// MarkSuccess resets the failure counter, clears any lockout, and stamps
// last_login_at, all in one update. Called after token issuance.
func (s *Store) MarkSuccess(ctx context.Context, identifier string) error {
	if err := s.repo.RecordLoginSuccess(ctx, identifier); err != nil {
		s.logger.Error("Failed to persist login success", zap.Error(err))
		return err
	}
	s.record(ctx, identifier, "success")
	return nil
}

// HashPassword hashes a plaintext password at the configured cost, for the
// seed and repair tooling that creates credential records out-of-band.
func (s *Store) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Store) record(ctx context.Context, identifier, outcome string) {
	s.auditLog.Record(ctx, audit.Event{
		Action:     "backoffice.login",
		Identifier: identifier,
		Outcome:    outcome,
		At:         s.now().UTC(),
	})
}
