package provision

import (
	"context"
	"time"

	"pricing-service/internal/audit"
	"pricing-service/internal/database"
	"pricing-service/internal/metrics"
	"pricing-service/internal/models"

	"go.uber.org/zap"
)

const (
	maxAttempts = 3
	backoffBase = 100 * time.Millisecond
)

// Provisioner resolves an Identity to its effective role, creating the
// first-sight record on demand. It runs on every authenticated request.
type Provisioner struct {
	repo     database.Repository
	auditLog audit.Log
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration)
}

// NewProvisioner creates a role provisioner.
func NewProvisioner(repo database.Repository, auditLog audit.Log, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		repo:     repo,
		auditLog: auditLog,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// SetClock overrides the time source, for tests.
func (p *Provisioner) SetClock(now func() time.Time) {
	p.now = now
}

// SetSleep overrides the backoff sleeper, for tests.
func (p *Provisioner) SetSleep(sleep func(context.Context, time.Duration)) {
	p.sleep = sleep
}

// ResolveEffectiveRole looks up the role record for identity's email,
// touching login bookkeeping, and lazily inserts an Unassigned record on
// first sight. Two concurrent first-sight requests race on that insert; the
// loser reads the uniqueness violation as success. Any other persistence
// error is surfaced — silently failing to register a user can mask a broken
// database link.
func (p *Provisioner) ResolveEffectiveRole(ctx context.Context, identity *models.Identity) (models.Role, error) {
	if identity == nil || identity.Email == "" {
		// No email, no record to key on. Default deny.
		return models.RoleUnassigned, nil
	}

	role, err := p.resolveWithRetry(ctx, identity.Email)
	if err == nil {
		return role, nil
	}

	if database.IsSchemaMissing(err) {
		// Bootstrap/migration window: the table is not there yet. Fall back
		// to the upstream-asserted roles so the first operator can still get
		// in, and make the path unmissable in logs and metrics.
		p.logger.Error("Role store unavailable, falling back to asserted roles",
			zap.String("email", identity.Email), zap.Error(err))
		metrics.ProvisionFallbacks.Inc()
		p.auditLog.Record(ctx, audit.Event{
			Action:     "provision.fallback",
			Identifier: identity.Email,
			Outcome:    "asserted_roles",
			At:         p.now().UTC(),
		})
		return assertedRole(identity), nil
	}

	return models.RoleUnassigned, err
}

func (p *Provisioner) resolveWithRetry(ctx context.Context, email string) (models.Role, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			p.sleep(ctx, backoffBase<<(attempt-1))
		}

		role, err := p.resolveOnce(ctx, email)
		if err == nil {
			return role, nil
		}
		// A timeout during the first-insert race is retried rather than
		// treated as definite failure: the row may have committed just as
		// the client-side deadline fired, and the retry's lookup will see it.
		if !database.IsTransient(err) {
			return models.RoleUnassigned, err
		}
		lastErr = err
		p.logger.Warn("Transient role store error, retrying",
			zap.String("email", email), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return models.RoleUnassigned, lastErr
}

func (p *Provisioner) resolveOnce(ctx context.Context, email string) (models.Role, error) {
	rec, err := p.repo.GetUserRole(ctx, email)
	if err != nil {
		return models.RoleUnassigned, err
	}

	if rec != nil {
		// first_login_at is set once by the store; last_login_at every time.
		if err := p.repo.TouchUserLogin(ctx, email, p.now()); err != nil {
			p.logger.Warn("Failed to update login timestamps", zap.String("email", email), zap.Error(err))
		}
		return rec.Role, nil
	}

	err = p.repo.InsertUnassignedUser(ctx, email, p.now())
	if err == nil {
		p.logger.Info("Provisioned new unassigned user", zap.String("email", email))
		return models.RoleUnassigned, nil
	}
	if database.IsUniqueViolation(err) {
		// Lost the first-sight race; the record exists. That is success.
		return models.RoleUnassigned, nil
	}
	return models.RoleUnassigned, err
}

// assertedRole inspects the upstream-asserted roles for the privileged
// marker. Used only on the fallback path.
func assertedRole(identity *models.Identity) models.Role {
	for _, r := range identity.AssertedRoles {
		if models.ParseRole(r) == models.RoleExecutive {
			return models.RoleExecutive
		}
	}
	return models.RoleUnassigned
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
