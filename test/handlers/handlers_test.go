package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pricing-service/internal/audit"
	"pricing-service/internal/credentials"
	"pricing-service/internal/handlers"
	"pricing-service/internal/models"
	"pricing-service/internal/ratelimit"
	"pricing-service/internal/session"
	"pricing-service/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	repo     *mocks.MockRepository
	limiter  *mocks.MockLimiter
	sessions *session.Service
	handler  *handlers.AuthHandler
}

func newFixture() *fixture {
	repo := new(mocks.MockRepository)
	limiter := new(mocks.MockLimiter)
	sessions := session.NewService(strings.Repeat("k", 48), "pricing-service",
		8*time.Hour, 8*time.Hour, 7*24*time.Hour, 5*time.Minute)
	creds := credentials.NewStore(repo, audit.Nop{}, zap.NewNop(), bcrypt.MinCost, 5, 15*time.Minute)
	return &fixture{
		repo:     repo,
		limiter:  limiter,
		sessions: sessions,
		handler:  handlers.NewAuthHandler(limiter, creds, sessions, audit.Nop{}, zap.NewNop()),
	}
}

func adminWithPassword(t *testing.T, password string) *models.AdminCredential {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.AdminCredential{ID: 1, Identifier: "ops", PasswordHash: string(h), IsActive: true}
}

func postLogin(t *testing.T, h *handlers.AuthHandler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/backoffice/v1.0/login", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	h.HandleLogin(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture()
	f.limiter.On("Check", mock.Anything, mock.Anything).Return(ratelimit.Decision{Allowed: true, Remaining: 5}, nil).Once()
	f.repo.On("GetAdminByIdentifier", mock.Anything, "ops").Return(adminWithPassword(t, "pw"), nil).Once()
	f.repo.On("RecordLoginSuccess", mock.Anything, "ops").Return(nil).Once()
	f.limiter.On("Clear", mock.Anything, mock.Anything).Return(nil).Once()

	rr := postLogin(t, f.handler, models.LoginRequest{Identifier: "ops", Password: "pw"})

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.NotEmpty(t, body["accessToken"])
	require.NotEmpty(t, body["refreshToken"])
	assert.EqualValues(t, (8 * time.Hour).Seconds(), body["expiresInSeconds"])

	// The issued access token verifies back to the same subject.
	claims, err := f.sessions.VerifyAccess(body["accessToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)

	f.repo.AssertExpectations(t)
	f.limiter.AssertExpectations(t)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture()
	f.limiter.On("Check", mock.Anything, mock.Anything).Return(ratelimit.Decision{Allowed: true, Remaining: 5}, nil).Once()
	f.repo.On("GetAdminByIdentifier", mock.Anything, "ops").Return(adminWithPassword(t, "pw"), nil).Once()
	f.repo.On("RecordLoginFailure", mock.Anything, "ops", 5, mock.AnythingOfType("time.Time")).Return(nil).Once()
	f.limiter.On("RecordFailure", mock.Anything, mock.Anything).Return(nil).Once()

	rr := postLogin(t, f.handler, models.LoginRequest{Identifier: "ops", Password: "nope"})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeBody(t, rr)["code"])
	f.limiter.AssertExpectations(t)
}

func TestLoginUnknownIdentifierCountsAgainstWindow(t *testing.T) {
	f := newFixture()
	f.limiter.On("Check", mock.Anything, mock.Anything).Return(ratelimit.Decision{Allowed: true, Remaining: 5}, nil).Once()
	f.repo.On("GetAdminByIdentifier", mock.Anything, "ghost").Return(nil, nil).Once()
	f.limiter.On("RecordFailure", mock.Anything, mock.Anything).Return(nil).Once()

	rr := postLogin(t, f.handler, models.LoginRequest{Identifier: "ghost", Password: "pw"})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeBody(t, rr)["code"])
	f.limiter.AssertExpectations(t)
}

func TestLoginDisabledAccountDoesNotCountAgainstWindow(t *testing.T) {
	f := newFixture()
	cred := adminWithPassword(t, "pw")
	cred.IsActive = false
	f.limiter.On("Check", mock.Anything, mock.Anything).Return(ratelimit.Decision{Allowed: true, Remaining: 5}, nil).Once()
	f.repo.On("GetAdminByIdentifier", mock.Anything, "ops").Return(cred, nil).Once()

	rr := postLogin(t, f.handler, models.LoginRequest{Identifier: "ops", Password: "pw"})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "ACCOUNT_DISABLED", decodeBody(t, rr)["code"])
	f.limiter.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything)
}

func TestLoginLockedAccount(t *testing.T) {
	f := newFixture()
	cred := adminWithPassword(t, "pw")
	until := time.Now().Add(10 * time.Minute)
	cred.LockoutUntil = &until
	f.limiter.On("Check", mock.Anything, mock.Anything).Return(ratelimit.Decision{Allowed: true, Remaining: 5}, nil).Once()
	f.repo.On("GetAdminByIdentifier", mock.Anything, "ops").Return(cred, nil).Once()

	// Correct password, still locked.
	rr := postLogin(t, f.handler, models.LoginRequest{Identifier: "ops", Password: "pw"})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "ACCOUNT_LOCKED", decodeBody(t, rr)["code"])
	f.limiter.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything)
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture()
	f.limiter.On("Check", mock.Anything, mock.Anything).
		Return(ratelimit.Decision{Allowed: false, RetryAfter: 10 * time.Minute}, nil).Once()

	rr := postLogin(t, f.handler, models.LoginRequest{Identifier: "ops", Password: "pw"})

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeBody(t, rr)["code"])
	assert.Equal(t, "600", rr.Header().Get("Retry-After"))
	// A denied check never reaches the credential store.
	f.repo.AssertNotCalled(t, "GetAdminByIdentifier", mock.Anything, mock.Anything)
}

func TestLoginMissingFields(t *testing.T) {
	f := newFixture()

	rr := postLogin(t, f.handler, models.LoginRequest{Identifier: "ops"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody(t, rr)["code"])
}

func TestRefreshHappyPath(t *testing.T) {
	f := newFixture()
	pair, err := f.sessions.Issue("ops", false)
	require.NoError(t, err)

	raw, _ := json.Marshal(models.RefreshRequest{RefreshToken: pair.RefreshToken})
	req := httptest.NewRequest("POST", "/backoffice/v1.0/refresh", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	f.handler.HandleRefresh(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	claims, err := f.sessions.VerifyAccess(body["accessToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture()
	pair, err := f.sessions.Issue("ops", false)
	require.NoError(t, err)

	raw, _ := json.Marshal(models.RefreshRequest{RefreshToken: pair.AccessToken})
	req := httptest.NewRequest("POST", "/backoffice/v1.0/refresh", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	f.handler.HandleRefresh(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", decodeBody(t, rr)["code"])
}

func TestRefreshRejectsGarbage(t *testing.T) {
	f := newFixture()

	raw, _ := json.Marshal(models.RefreshRequest{RefreshToken: "garbage"})
	req := httptest.NewRequest("POST", "/backoffice/v1.0/refresh", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	f.handler.HandleRefresh(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", decodeBody(t, rr)["code"])
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	f := newFixture()

	// No token, expired token, garbage token: all acknowledged.
	for _, token := range []string{"", "Bearer expired", "Bearer garbage"} {
		req := httptest.NewRequest("POST", "/backoffice/v1.0/logout", nil)
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		rr := httptest.NewRecorder()
		f.handler.HandleLogout(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRoleHandlerAssignValidation(t *testing.T) {
	repo := new(mocks.MockRepository)
	h := handlers.NewRoleHandler(repo, audit.Nop{}, zap.NewNop())

	tests := []struct {
		name string
		body models.AssignRoleRequest
	}{
		{"email without at-sign", models.AssignRoleRequest{Email: "nope", Role: "Sales"}},
		{"unknown role", models.AssignRoleRequest{Email: "a@x.com", Role: "Wizard"}},
		{"unassigned via POST", models.AssignRoleRequest{Email: "a@x.com", Role: "Unassigned"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := json.Marshal(tt.body)
			req := httptest.NewRequest("POST", "/api/v1.0/roles", bytes.NewReader(raw))
			rr := httptest.NewRecorder()
			h.HandleAssign(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
	repo.AssertNotCalled(t, "AssignUserRole", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRoleHandlerAssign(t *testing.T) {
	repo := new(mocks.MockRepository)
	repo.On("AssignUserRole", mock.Anything, "a@x.com", models.RoleExecutive, "System").Return(nil).Once()
	h := handlers.NewRoleHandler(repo, audit.Nop{}, zap.NewNop())

	raw, _ := json.Marshal(models.AssignRoleRequest{Email: "A@X.com", Role: "Executive"})
	req := httptest.NewRequest("POST", "/api/v1.0/roles", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	h.HandleAssign(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	repo.AssertExpectations(t)
}
