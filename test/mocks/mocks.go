package mocks

import (
	"context"
	"time"

	"pricing-service/internal/models"
	"pricing-service/internal/ratelimit"

	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock implementation of database.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepository) GetAdminByIdentifier(ctx context.Context, identifier string) (*models.AdminCredential, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdminCredential), args.Error(1)
}

func (m *MockRepository) RecordLoginFailure(ctx context.Context, identifier string, threshold int, lockoutUntil time.Time) error {
	args := m.Called(ctx, identifier, threshold, lockoutUntil)
	return args.Error(0)
}

func (m *MockRepository) RecordLoginSuccess(ctx context.Context, identifier string) error {
	args := m.Called(ctx, identifier)
	return args.Error(0)
}

func (m *MockRepository) GetUserRole(ctx context.Context, email string) (*models.UserRoleRecord, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserRoleRecord), args.Error(1)
}

func (m *MockRepository) InsertUnassignedUser(ctx context.Context, email string, now time.Time) error {
	args := m.Called(ctx, email, now)
	return args.Error(0)
}

func (m *MockRepository) TouchUserLogin(ctx context.Context, email string, now time.Time) error {
	args := m.Called(ctx, email, now)
	return args.Error(0)
}

func (m *MockRepository) ListUserRoles(ctx context.Context) ([]*models.UserRoleRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UserRoleRecord), args.Error(1)
}

func (m *MockRepository) AssignUserRole(ctx context.Context, email string, role models.Role, assignedBy string) error {
	args := m.Called(ctx, email, role, assignedBy)
	return args.Error(0)
}

func (m *MockRepository) RemoveUserRole(ctx context.Context, email string, removedBy string) error {
	args := m.Called(ctx, email, removedBy)
	return args.Error(0)
}

// MockLimiter is a mock implementation of ratelimit.Limiter
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Check(ctx context.Context, key string) (ratelimit.Decision, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(ratelimit.Decision), args.Error(1)
}

func (m *MockLimiter) RecordFailure(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockLimiter) Clear(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
