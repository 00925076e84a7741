package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pricing-service/internal/audit"
	"pricing-service/internal/credentials"
	"pricing-service/internal/metrics"
	"pricing-service/internal/middleware"
	"pricing-service/internal/models"
	"pricing-service/internal/ratelimit"
	"pricing-service/internal/session"
	"pricing-service/pkg/errors"

	"go.uber.org/zap"
)

const storeTimeout = 5 * time.Second

// AuthHandler handles the backoffice login, refresh, and logout endpoints.
type AuthHandler struct {
	limiter  ratelimit.Limiter
	creds    *credentials.Store
	sessions *session.Service
	auditLog audit.Log
	logger   *zap.Logger
}

// NewAuthHandler creates the backoffice auth handler.
func NewAuthHandler(limiter ratelimit.Limiter, creds *credentials.Store, sessions *session.Service, auditLog audit.Log, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		limiter:  limiter,
		creds:    creds,
		sessions: sessions,
		auditLog: auditLog,
		logger:   logger,
	}
}

// HandleLogin handles POST /backoffice/v1.0/login
// @Summary     Backoffice login
// @Description Verifies admin credentials and issues an access/refresh token pair.
// @Tags        backoffice
// @Accept      application/json
// @Produce     application/json
// @Param       request body     models.LoginRequest true "Login request"
// @Success     200     {object} models.TokenResponse
// @Failure     400     {object} map[string]string
// @Failure     401     {object} map[string]string
// @Failure     429     {object} map[string]string
// @Router      /backoffice/v1.0/login [post]
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}
	if req.Identifier == "" || req.Password == "" {
		sendError(w, errors.ErrInvalidRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	// Window key is source address plus identifier, so one address probing
	// many identifiers and many addresses probing one identifier both count.
	key := middleware.ClientIP(r) + ":" + strings.ToLower(req.Identifier)

	// Advisory check only: a denied check never records an attempt, so a
	// caller cannot roll its own window forward by polling.
	decision, err := h.limiter.Check(ctx, key)
	if err != nil {
		h.logger.Error("Rate limit check failed", zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}
	if !decision.Allowed {
		metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", retryAfterSeconds(decision.RetryAfter))
		sendError(w, errors.ErrRateLimitExceeded)
		return
	}

	cred, err := h.creds.Verify(ctx, req.Identifier, req.Password)
	if err != nil {
		h.rejectLogin(ctx, w, key, err)
		return
	}

	// Verification done; issue tokens, then reset state. A failed
	// comparison can never reach this point.
	pair, err := h.sessions.Issue(cred.Identifier, req.RememberMe)
	if err != nil {
		h.logger.Error("Failed to issue session tokens", zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}
	metrics.TokensIssued.WithLabelValues(session.KindAccess).Inc()
	metrics.TokensIssued.WithLabelValues(session.KindRefresh).Inc()
	metrics.LoginAttempts.WithLabelValues("success").Inc()

	if err := h.creds.MarkSuccess(ctx, cred.Identifier); err != nil {
		// The login itself succeeded; a stale failure counter is an
		// operational problem, not a reason to reject the admin.
		h.logger.Warn("Failed to reset credential state after login", zap.Error(err))
	}
	if err := h.limiter.Clear(ctx, key); err != nil {
		h.logger.Warn("Failed to clear rate limit window after login", zap.Error(err))
	}

	sendJSON(w, http.StatusOK, &models.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresInSeconds: pair.ExpiresInSeconds,
	})
}

// rejectLogin translates a verification failure and counts it against the
// window when it was an actual credential failure (unknown identifier or
// wrong password) rather than an account-state rejection.
func (h *AuthHandler) rejectLogin(ctx context.Context, w http.ResponseWriter, key string, err error) {
	var se *errors.ServiceError
	if !stderrors.As(err, &se) {
		h.logger.Error("Credential verification failed", zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	credentialFailure := stderrors.Is(err, credentials.ErrPasswordMismatch) ||
		se.Code == errors.ErrInvalidCredentials.Code
	if credentialFailure {
		if rlErr := h.limiter.RecordFailure(ctx, key); rlErr != nil {
			h.logger.Error("Failed to record rate limit failure", zap.Error(rlErr))
		}
	}

	switch se.Code {
	case errors.ErrAccountDisabled.Code:
		metrics.LoginAttempts.WithLabelValues("disabled").Inc()
	case errors.ErrAccountLocked.Code:
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
	default:
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
	}

	sendError(w, se)
}

// HandleRefresh handles POST /backoffice/v1.0/refresh
// @Summary     Refresh session tokens
// @Description Exchanges a valid refresh token for a new access/refresh pair.
// @Tags        backoffice
// @Accept      application/json
// @Produce     application/json
// @Param       request body     models.RefreshRequest true "Refresh request"
// @Success     200     {object} models.TokenResponse
// @Failure     401     {object} map[string]string
// @Router      /backoffice/v1.0/refresh [post]
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRefreshToken))
		return
	}
	if req.RefreshToken == "" {
		sendError(w, errors.ErrInvalidRefreshToken)
		return
	}

	pair, err := h.sessions.Refresh(req.RefreshToken)
	if err != nil {
		metrics.TokenVerifications.WithLabelValues("rejected").Inc()
		h.logger.Debug("Refresh token rejected", zap.Error(err))
		sendError(w, errors.ErrInvalidRefreshToken)
		return
	}
	metrics.TokensIssued.WithLabelValues(session.KindAccess).Inc()
	metrics.TokensIssued.WithLabelValues(session.KindRefresh).Inc()

	sendJSON(w, http.StatusOK, &models.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresInSeconds: pair.ExpiresInSeconds,
	})
}

// HandleLogout handles POST /backoffice/v1.0/logout
// @Summary     Backoffice logout
// @Description Acknowledges a client logout. Verification is stateless, so
// @Description logout is a client-intent signal, not a security boundary:
// @Description the response is 200 even for an already-expired token.
// @Tags        backoffice
// @Produce     application/json
// @Success     200 {object} map[string]string
// @Router      /backoffice/v1.0/logout [post]
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.auditLog.Record(r.Context(), audit.Event{
		Action:   "backoffice.logout",
		Outcome:  "acknowledged",
		ClientIP: middleware.ClientIP(r),
	})
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSession handles GET /backoffice/v1.0/session
// @Summary     Current backoffice session
// @Description Echoes the admin principal for a valid session token.
// @Tags        backoffice
// @Produce     application/json
// @Success     200 {object} map[string]string
// @Failure     401 {object} map[string]string
// @Router      /backoffice/v1.0/session [get]
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	admin, ok := middleware.AdminFromContext(r.Context())
	if !ok {
		sendError(w, errors.ErrUnauthenticated)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"subject": admin.Subject})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
