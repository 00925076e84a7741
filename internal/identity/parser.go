package identity

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"pricing-service/internal/models"

	"go.uber.org/zap"
)

// AssertionHeader carries the upstream identity assertion: base64-encoded
// JSON produced by the trusted front door. The value is a bearer-equivalent
// secret and must never be logged.
const AssertionHeader = "X-Identity-Assertion"

// Claim types scanned, in priority order, when the display identity does not
// carry a usable email. Different upstream providers populate different claim
// subsets, so the ordering is load-bearing.
var emailClaimPriority = []string{
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
	"email",
	"emails",
	"preferred_username",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/upn",
	"upn",
	"name",
}

// assertion is the wire shape of the upstream identity header.
type assertion struct {
	SubjectID       string         `json:"subjectId"`
	DisplayIdentity string         `json:"displayIdentity"`
	Roles           []string       `json:"roles"`
	Claims          []models.Claim `json:"claims"`
}

// Parser decodes the trusted identity header into a canonical Identity.
type Parser struct {
	devBypass bool
	logger    *zap.Logger
}

// NewParser creates a parser. devBypass must come from server-side
// configuration, never from request shape.
func NewParser(devBypass bool, logger *zap.Logger) *Parser {
	return &Parser{
		devBypass: devBypass,
		logger:    logger,
	}
}

// Parse decodes and validates the identity assertion on the request.
// It returns nil when no valid identity is present; it never panics and
// never returns a partially-validated identity.
func (p *Parser) Parse(r *http.Request) *models.Identity {
	if p.devBypass {
		return mockIdentity()
	}

	raw := r.Header.Get(AssertionHeader)
	if raw == "" {
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// Try URL-safe alphabet before giving up; some proxies re-encode.
		decoded, err = base64.URLEncoding.DecodeString(raw)
	}
	if err != nil {
		p.logger.Warn("Malformed identity assertion encoding", zap.Bool("has_header", true))
		return nil
	}

	var a assertion
	if err := json.Unmarshal(decoded, &a); err != nil {
		p.logger.Warn("Malformed identity assertion payload", zap.Bool("has_header", true))
		return nil
	}

	if a.SubjectID == "" {
		p.logger.Warn("Identity assertion missing subject", zap.Bool("has_header", true))
		return nil
	}

	return &models.Identity{
		SubjectID:     a.SubjectID,
		Email:         extractEmail(a.DisplayIdentity, a.Claims),
		AssertedRoles: a.Roles,
		RawClaims:     a.Claims,
	}
}

// extractEmail prefers the display identity, then falls back to the raw
// claims in fixed priority order. It returns "" when nothing qualifies —
// never a placeholder.
func extractEmail(display string, claims []models.Claim) string {
	if isEmail(display) {
		return display
	}
	for _, claimType := range emailClaimPriority {
		for _, c := range claims {
			if !strings.EqualFold(c.Type, claimType) {
				continue
			}
			if isEmail(c.Value) {
				return c.Value
			}
		}
	}
	return ""
}

func isEmail(v string) bool {
	if v == "" || v == "undefined" {
		return false
	}
	return strings.Contains(v, "@")
}

// mockIdentity is the fixed local-development identity returned when the
// bypass switch is on.
func mockIdentity() *models.Identity {
	return &models.Identity{
		SubjectID:     "local-dev",
		Email:         "dev@localhost.local",
		AssertedRoles: []string{string(models.RoleExecutive)},
		RawClaims: []models.Claim{
			{Type: "email", Value: "dev@localhost.local"},
		},
	}
}
