package models

import "time"

// Role is the effective role used for authorization decisions. It is resolved
// from the persistent store, never taken from upstream-asserted roles except
// during the bootstrap fallback.
type Role string

const (
	RoleUnassigned Role = "Unassigned"
	RoleSales      Role = "Sales"
	RoleExecutive  Role = "Executive"
)

// ParseRole maps a stored role string to a Role, defaulting to Unassigned.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSales:
		return RoleSales
	case RoleExecutive:
		return RoleExecutive
	default:
		return RoleUnassigned
	}
}

// Claim is a single typed claim from the upstream identity assertion.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Identity is the canonical per-request identity derived from the trusted
// upstream header. It is never persisted and never shared across requests.
type Identity struct {
	SubjectID     string
	Email         string // validated to contain "@", empty when absent
	AssertedRoles []string
	RawClaims     []Claim
}

// UserRoleRecord is the persistent role assignment, one per distinct email.
// A NULL role column means Unassigned so that default-deny is the natural
// "no assignment yet" state.
type UserRoleRecord struct {
	Email        string     `db:"email"`
	Role         Role       `db:"role"`
	AssignedBy   string     `db:"assigned_by"`
	AssignedAt   time.Time  `db:"assigned_at"`
	FirstLoginAt *time.Time `db:"first_login_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
}

// AdminCredential is a backoffice administrator account.
type AdminCredential struct {
	ID                   int64      `db:"id"`
	Identifier           string     `db:"identifier"`
	PasswordHash         string     `db:"password_hash"`
	IsActive             bool       `db:"is_active"`
	FailedLoginAttempts  int        `db:"failed_login_attempts"`
	LockoutUntil         *time.Time `db:"lockout_until"`
	LastLoginAt          *time.Time `db:"last_login_at"`
	LastPasswordChangeAt *time.Time `db:"last_password_change_at"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// LockedFor reports the remaining lockout duration at the given instant,
// zero when the account is not locked.
func (c *AdminCredential) LockedFor(now time.Time) time.Duration {
	if c.LockoutUntil == nil || !c.LockoutUntil.After(now) {
		return 0
	}
	return c.LockoutUntil.Sub(now)
}

// LoginRequest is the backoffice login request body.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

// TokenResponse is the backoffice login/refresh response.
type TokenResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

// RefreshRequest is the token refresh request body.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AssignRoleRequest is the role-admin assignment request body.
type AssignRoleRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// PrincipalResponse echoes the resolved identity for authenticated callers.
type PrincipalResponse struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role"`
}
