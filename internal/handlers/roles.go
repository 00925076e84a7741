package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pricing-service/internal/audit"
	"pricing-service/internal/database"
	"pricing-service/internal/middleware"
	"pricing-service/internal/models"
	"pricing-service/pkg/errors"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RoleHandler handles the privileged role-administration endpoints. Routes
// using it are gated by RequireIdentity plus RequireExecutive.
type RoleHandler struct {
	repo     database.Repository
	auditLog audit.Log
	logger   *zap.Logger
}

// NewRoleHandler creates the role-admin handler.
func NewRoleHandler(repo database.Repository, auditLog audit.Log, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{
		repo:     repo,
		auditLog: auditLog,
		logger:   logger,
	}
}

type roleRecordResponse struct {
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	AssignedBy   string     `json:"assignedBy"`
	AssignedAt   time.Time  `json:"assignedAt"`
	FirstLoginAt *time.Time `json:"firstLoginAt,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// HandleList handles GET /api/v1.0/roles
// @Summary     List user role records
// @Tags        roles
// @Produce     application/json
// @Success     200 {array}  handlers.roleRecordResponse
// @Failure     401 {object} map[string]string
// @Failure     403 {object} map[string]string
// @Router      /api/v1.0/roles [get]
func (h *RoleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	records, err := h.repo.ListUserRoles(ctx)
	if err != nil {
		h.logger.Error("Failed to list user roles", zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	resp := make([]roleRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, roleRecordResponse{
			Email:        rec.Email,
			Role:         string(rec.Role),
			AssignedBy:   rec.AssignedBy,
			AssignedAt:   rec.AssignedAt,
			FirstLoginAt: rec.FirstLoginAt,
			LastLoginAt:  rec.LastLoginAt,
		})
	}
	sendJSON(w, http.StatusOK, resp)
}

// HandleAssign handles POST /api/v1.0/roles
// @Summary     Assign a role to an email
// @Tags        roles
// @Accept      application/json
// @Produce     application/json
// @Param       request body     models.AssignRoleRequest true "Assignment"
// @Success     200     {object} map[string]string
// @Failure     400     {object} map[string]string
// @Failure     401     {object} map[string]string
// @Failure     403     {object} map[string]string
// @Router      /api/v1.0/roles [post]
func (h *RoleHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req models.AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, errors.Wrap(err, errors.ErrInvalidRequest))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		sendError(w, errors.ErrInvalidRequest)
		return
	}
	role := models.ParseRole(req.Role)
	if role == models.RoleUnassigned {
		// Unassigning goes through DELETE, keeping the audit trail honest.
		sendError(w, errors.ErrInvalidRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	assignedBy := actorFromContext(r)
	if err := h.repo.AssignUserRole(ctx, email, role, assignedBy); err != nil {
		h.logger.Error("Failed to assign role", zap.String("email", email), zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	h.auditLog.Record(ctx, audit.Event{
		Action:     "role.assign",
		Identifier: email,
		Outcome:    string(role),
		ClientIP:   middleware.ClientIP(r),
	})
	sendJSON(w, http.StatusOK, map[string]string{"email": email, "role": string(role)})
}

// HandleRemove handles DELETE /api/v1.0/roles/{email}
// @Summary     Remove a role assignment
// @Description Sets the role back to Unassigned. The record itself is kept.
// @Tags        roles
// @Produce     application/json
// @Success     200 {object} map[string]string
// @Failure     401 {object} map[string]string
// @Failure     403 {object} map[string]string
// @Router      /api/v1.0/roles/{email} [delete]
func (h *RoleHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(mux.Vars(r)["email"])
	if !strings.Contains(email, "@") {
		sendError(w, errors.ErrInvalidRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	removedBy := actorFromContext(r)
	if err := h.repo.RemoveUserRole(ctx, email, removedBy); err != nil {
		h.logger.Error("Failed to remove role", zap.String("email", email), zap.Error(err))
		sendError(w, errors.Wrap(err, errors.ErrInternalServer))
		return
	}

	h.auditLog.Record(ctx, audit.Event{
		Action:     "role.remove",
		Identifier: email,
		Outcome:    string(models.RoleUnassigned),
		ClientIP:   middleware.ClientIP(r),
	})
	sendJSON(w, http.StatusOK, map[string]string{"email": email, "role": string(models.RoleUnassigned)})
}

// actorFromContext names the administrator for assigned_by, preferring the
// email of the authenticated principal.
func actorFromContext(r *http.Request) string {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return "System"
	}
	if p.Identity.Email != "" {
		return p.Identity.Email
	}
	return p.Identity.SubjectID
}
