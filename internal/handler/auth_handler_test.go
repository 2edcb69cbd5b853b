package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/service"
)

type stubAuthRepo struct {
	usersByEmail map[string]*models.User
	tokens       map[string]*models.RefreshToken
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{
		usersByEmail: make(map[string]*models.User),
		tokens:       make(map[string]*models.RefreshToken),
	}
}

func (r *stubAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := r.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *stubAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	for _, u := range r.usersByEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *stubAuthRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.usersByEmail[user.Email] = user
	return nil
}

func (r *stubAuthRepo) UpdateLastLogin(context.Context, string, time.Time) error { return nil }

func (r *stubAuthRepo) UpdatePassword(context.Context, string, string, time.Time) error {
	return nil
}

func (r *stubAuthRepo) RevokeUserRefreshTokens(context.Context, string) error { return nil }

func (r *stubAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	r.tokens[token.Token] = token
	return nil
}

func (r *stubAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := r.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (r *stubAuthRepo) RevokeRefreshToken(context.Context, string, time.Time) error { return nil }

func (r *stubAuthRepo) CreateAuditLog(context.Context, *models.AuditLog) error { return nil }

func newTestAuthHandler(repo *stubAuthRepo) *AuthHandler {
	svc := service.NewAuthService(repo, validator.New(), nil, service.AuthConfig{
		AccessTokenSecret:  "handler-test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
	return NewAuthHandler(svc)
}

func TestAuthHandlerRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestAuthHandler(newStubAuthRepo())

	body := `{"email":"fatma@uni.edu","password":"supersecret","full_name":"Fatma Yilmaz","faculty":"Engineering","department":"CS"}`
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Register(c)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body: %s", recorder.Code, recorder.Body.String())
	}

	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.AccessToken == "" {
		t.Fatalf("expected an access token")
	}
	if envelope.Data.User.Email != "fatma@uni.edu" {
		t.Fatalf("unexpected user email: %s", envelope.Data.User.Email)
	}
}

func TestAuthHandlerRegisterRejectsBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestAuthHandler(newStubAuthRepo())

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"email":"not-json`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Register(c)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newStubAuthRepo()
	hash, _ := bcrypt.GenerateFromPassword([]byte("rightpassword"), bcrypt.MinCost)
	repo.usersByEmail["kenan@uni.edu"] = &models.User{
		ID:           uuid.NewString(),
		Email:        "kenan@uni.edu",
		PasswordHash: string(hash),
		FullName:     "Kenan Demir",
		Role:         models.RoleStudent,
		Active:       true,
	}
	handler := newTestAuthHandler(repo)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"kenan@uni.edu","password":"wrongpassword"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d body: %s", recorder.Code, recorder.Body.String())
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected error code: %s", envelope.Error.Code)
	}
}
