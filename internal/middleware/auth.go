package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"pricing-service/internal/identity"
	"pricing-service/internal/metrics"
	"pricing-service/internal/models"
	"pricing-service/internal/provision"
	"pricing-service/internal/session"
	"pricing-service/pkg/errors"

	"go.uber.org/zap"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	adminKey     contextKey = "admin"
)

// Principal is the per-request result of the identity guard: the parsed
// identity plus its effective role.
type Principal struct {
	Identity *models.Identity
	Role     models.Role
}

// AdminPrincipal is the per-request result of the backoffice session guard.
type AdminPrincipal struct {
	Subject string
}

// PrincipalFromContext returns the identity principal set by RequireIdentity.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// AdminFromContext returns the admin principal set by RequireBackofficeSession.
func AdminFromContext(ctx context.Context) (*AdminPrincipal, bool) {
	a, ok := ctx.Value(adminKey).(*AdminPrincipal)
	return a, ok
}

// RequireIdentity guards main-application endpoints: the upstream assertion
// must parse, and the provisioner is touched for role resolution and login
// bookkeeping. Missing or malformed identity is a 401.
func RequireIdentity(parser *identity.Parser, provisioner *provision.Provisioner, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := parser.Parse(r)
			if id == nil {
				sendError(w, errors.ErrUnauthenticated)
				return
			}

			role, err := provisioner.ResolveEffectiveRole(r.Context(), id)
			if err != nil {
				logger.Error("Role resolution failed", zap.Error(err))
				sendError(w, errors.Wrap(err, errors.ErrInternalServer))
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, &Principal{Identity: id, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireBackofficeSession guards backoffice endpoints with the session
// token issued at login. It is a fully separate scheme from RequireIdentity
// and the two are never stacked on the same route.
func RequireBackofficeSession(sessions *session.Service, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				sendError(w, errors.ErrUnauthenticated)
				return
			}

			claims, err := sessions.VerifyAccess(token)
			if err != nil {
				metrics.TokenVerifications.WithLabelValues("rejected").Inc()
				logger.Debug("Session token rejected", zap.Error(err))
				sendError(w, errors.ErrInvalidToken)
				return
			}
			metrics.TokenVerifications.WithLabelValues("accepted").Inc()

			ctx := context.WithValue(r.Context(), adminKey, &AdminPrincipal{Subject: claims.Subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireExecutive gates role-admin endpoints. No principal at all is a 401;
// an authenticated principal without the Executive role is a 403. The two
// must stay distinguishable.
func RequireExecutive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			sendError(w, errors.ErrUnauthenticated)
			return
		}
		if p.Role != models.RoleExecutive {
			sendError(w, errors.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func sendError(w http.ResponseWriter, err *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Message,
		"code":  err.Code,
	})
}
