package handlers

import (
	"net/http"

	"pricing-service/internal/middleware"
	"pricing-service/internal/models"
	"pricing-service/pkg/errors"
)

// HandleMe handles GET /api/v1.0/me
// @Summary     Current identity and effective role
// @Tags        identity
// @Produce     application/json
// @Success     200 {object} models.PrincipalResponse
// @Failure     401 {object} map[string]string
// @Router      /api/v1.0/me [get]
func HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, errors.ErrUnauthenticated)
		return
	}
	sendJSON(w, http.StatusOK, &models.PrincipalResponse{
		Subject: p.Identity.SubjectID,
		Email:   p.Identity.Email,
		Role:    string(p.Role),
	})
}
