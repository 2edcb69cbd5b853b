package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	deleted   []string
	auditLogs []*models.AuditLog
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*models.User)}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Update(_ context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	m.users[id].Active = false
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		if filter.Faculty != "" && u.Faculty != filter.Faculty {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockUserRepo) Leaderboard(_ context.Context, limit int) ([]dto.LeaderboardEntry, error) {
	entries := make([]dto.LeaderboardEntry, 0, len(m.users))
	for _, u := range m.users {
		entries = append(entries, dto.LeaderboardEntry{
			UserID:     u.ID,
			FullName:   u.FullName,
			Faculty:    u.Faculty,
			Reputation: u.Reputation,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Reputation > entries[j].Reputation })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *mockUserRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func strPtr(s string) *string { return &s }

func TestUserServiceUpdateProfile(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u1"] = &models.User{ID: "u1", FullName: "Old Name", Faculty: "Engineering", Role: models.RoleStudent, Active: true}
	svc := NewUserService(repo, validator.New(), nil)

	actor := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	updated, err := svc.Update(context.Background(), "u1", dto.UpdateUserRequest{FullName: strPtr("New Name")}, actor)
	require.NoError(t, err)
	require.Equal(t, "New Name", updated.FullName)
	require.Equal(t, "Engineering", updated.Faculty)
	require.Len(t, repo.auditLogs, 1)
}

func TestUserServiceUpdateDropsRoleForStudents(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u1"] = &models.User{ID: "u1", Role: models.RoleStudent, Active: true}
	svc := NewUserService(repo, validator.New(), nil)

	role := models.RoleAdmin
	actor := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	updated, err := svc.Update(context.Background(), "u1", dto.UpdateUserRequest{Role: &role}, actor)
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, updated.Role)
}

func TestUserServiceUpdateAdminCanChangeRole(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u1"] = &models.User{ID: "u1", Role: models.RoleStudent, Active: true}
	svc := NewUserService(repo, validator.New(), nil)

	role := models.RoleModerator
	actor := &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}
	updated, err := svc.Update(context.Background(), "u1", dto.UpdateUserRequest{Role: &role}, actor)
	require.NoError(t, err)
	require.Equal(t, models.RoleModerator, updated.Role)
}

func TestUserServiceGetMissing(t *testing.T) {
	svc := NewUserService(newMockUserRepo(), validator.New(), nil)

	_, err := svc.Get(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDeactivate(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u1"] = &models.User{ID: "u1", Active: true}
	svc := NewUserService(repo, validator.New(), nil)

	actor := &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}
	require.NoError(t, svc.Deactivate(context.Background(), "u1", actor))
	require.Contains(t, repo.deleted, "u1")
	require.Len(t, repo.auditLogs, 1)
}

func TestUserServiceLeaderboard(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["u1"] = &models.User{ID: "u1", FullName: "Low", Reputation: 2}
	repo.users["u2"] = &models.User{ID: "u2", FullName: "High", Reputation: 9}
	repo.users["u3"] = &models.User{ID: "u3", FullName: "Mid", Reputation: 5}
	svc := NewUserService(repo, validator.New(), nil)

	entries, err := svc.Leaderboard(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "u2", entries[0].UserID)
	require.Equal(t, "u3", entries[1].UserID)
}
