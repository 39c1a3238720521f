package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedrop/lifedrop-api/internal/models"
	appErrors "github.com/lifedrop/lifedrop-api/pkg/errors"
)

type mockUserRepo struct {
	users   map[string]models.User
	byEmail map[string]models.User
	active  map[string]bool
	created *models.User
	audits  []models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]models.User)
	}
	m.users[user.ID] = *user
	m.created = user
	return nil
}

func (m *mockUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	if m.active == nil {
		m.active = make(map[string]bool)
	}
	m.active[id] = active
	if u, ok := m.users[id]; ok {
		u.Active = active
		m.users[id] = u
	}
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func TestUserListWithRoleFilter(t *testing.T) {
	repo := &mockUserRepo{users: map[string]models.User{
		"u1": {ID: "u1", Role: models.RoleDonor},
		"u2": {ID: "u2", Role: models.RoleAdmin},
	}}
	svc := NewUserService(repo, nil, nil)

	role := models.RoleDonor
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserCreateHashesPassword(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "Donor@Example.com",
		FullName: "New Donor",
		Role:     models.RoleDonor,
		Active:   true,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "donor@example.com", user.Email)
	assert.NotEqual(t, "secret123", user.PasswordHash)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.audits[0].Action)
}

func TestUserCreateRejectsDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{byEmail: map[string]models.User{
		"donor@example.com": {ID: "u1"},
	}}
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "donor@example.com",
		FullName: "New Donor",
		Role:     models.RoleDonor,
		Password: "secret123",
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserCreateRejectsUnknownBloodType(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, nil)

	bloodType := "Z+"
	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:     "donor@example.com",
		FullName:  "New Donor",
		Role:      models.RoleDonor,
		BloodType: &bloodType,
		Password:  "secret123",
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestToggleStatusFlipsActive(t *testing.T) {
	repo := &mockUserRepo{users: map[string]models.User{
		"u1": {ID: "u1", Active: true},
	}}
	svc := NewUserService(repo, nil, nil)

	user, err := svc.ToggleStatus(context.Background(), "u1", "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.False(t, user.Active)
	assert.False(t, repo.active["u1"])
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserStatusToggle, repo.audits[0].Action)
}

func TestToggleStatusForbidsSelf(t *testing.T) {
	repo := &mockUserRepo{users: map[string]models.User{
		"admin-1": {ID: "admin-1", Active: true},
	}}
	svc := NewUserService(repo, nil, nil)

	_, err := svc.ToggleStatus(context.Background(), "admin-1", "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.active)
}

func TestToggleStatusNotFound(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, nil)

	_, err := svc.ToggleStatus(context.Background(), "missing", "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
