package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/storage"
)

type mockMaterialRepo struct {
	materials map[string]*models.Material
	deleted   []string
}

func newMockMaterialRepo() *mockMaterialRepo {
	return &mockMaterialRepo{materials: make(map[string]*models.Material)}
}

func (m *mockMaterialRepo) Create(ctx context.Context, mat *models.Material) error {
	if mat.ID == "" {
		mat.ID = uuid.NewString()
	}
	clone := *mat
	m.materials[mat.ID] = &clone
	return nil
}

func (m *mockMaterialRepo) FindByID(ctx context.Context, id string) (*models.Material, error) {
	mat, ok := m.materials[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *mat
	return &clone, nil
}

func (m *mockMaterialRepo) FindVisibleByHash(ctx context.Context, hash string, filter models.MaterialFilter) (*models.Material, error) {
	for _, mat := range m.materials {
		if mat.FileHash != hash {
			continue
		}
		if filter.ViewerIsStaff || mat.OwnerID == filter.ViewerID || mat.Scope == models.ScopePublic {
			clone := *mat
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockMaterialRepo) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error) {
	out := make([]models.Material, 0, len(m.materials))
	for _, mat := range m.materials {
		out = append(out, *mat)
	}
	return out, len(out), nil
}

func (m *mockMaterialRepo) Update(ctx context.Context, mat *models.Material) error {
	if _, ok := m.materials[mat.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *mat
	m.materials[mat.ID] = &clone
	return nil
}

func (m *mockMaterialRepo) Delete(ctx context.Context, id string) error {
	delete(m.materials, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockMaterialRepo) FindByIDs(ctx context.Context, ids []string) ([]models.Material, error) {
	out := make([]models.Material, 0, len(ids))
	for _, id := range ids {
		if mat, ok := m.materials[id]; ok {
			out = append(out, *mat)
		}
	}
	return out, nil
}

type mockOwnerDirectory struct {
	users map[string]*models.User
}

func (m *mockOwnerDirectory) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type mockCourseDirectory struct {
	courses map[string]*models.Course
}

func (m *mockCourseDirectory) FindCourseByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

type materialFixture struct {
	svc        *MaterialService
	repo       *mockMaterialRepo
	users      *mockOwnerDirectory
	courses    *mockCourseDirectory
	uploads    *UploadService
	uploadRepo *mockUploadRepo
	files      *storage.FallbackStore
	enqueued   []string
}

func newMaterialFixture(t *testing.T) *materialFixture {
	t.Helper()
	uploads, uploadRepo := newTestUploadService(t)
	durable, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	files := storage.NewFallbackStore(durable, nil, 0, zap.NewNop())
	signer := storage.NewSigner("test-secret", time.Minute)
	repo := newMockMaterialRepo()
	users := &mockOwnerDirectory{users: make(map[string]*models.User)}
	courses := &mockCourseDirectory{courses: make(map[string]*models.Course)}

	f := &materialFixture{repo: repo, users: users, courses: courses, uploads: uploads, uploadRepo: uploadRepo, files: files}
	f.svc = NewMaterialService(repo, users, courses, uploads, files, signer, validator.New(), zap.NewNop())
	f.svc.SetIngestEnqueuer(func(materialID string) error {
		f.enqueued = append(f.enqueued, materialID)
		return nil
	})
	return f
}

func (f *materialFixture) storedUpload(t *testing.T, uploaderID, hash string) *models.UploadSession {
	t.Helper()
	session := &models.UploadSession{
		UploaderID:      uploaderID,
		Mode:            models.UploadModeSingle,
		FileName:        "notes.txt",
		FileSize:        10,
		MimeType:        "text/plain",
		FileHash:        hash,
		Status:          models.UploadStatusStored,
		StorageProvider: storage.ProviderLocal,
		StorageKey:      "materials/" + uuid.NewString() + "/notes.txt",
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	require.NoError(t, f.uploadRepo.Create(context.Background(), session))
	return session
}

func studentClaims(userID, faculty, department string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleStudent, Faculty: faculty, Department: department}
}

func TestMaterialCreateFromStoredUpload(t *testing.T) {
	f := newMaterialFixture(t)
	claims := studentClaims("u1", "Engineering", "Computer Science")
	session := f.storedUpload(t, "u1", sha256hex("payload-a"))

	material, err := f.svc.Create(context.Background(), claims, dto.CreateMaterialRequest{
		UploadID: session.ID,
		Title:    "Graph theory notes",
		Scope:    models.ScopePublic,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MaterialStatusPending, material.Status)
	assert.Equal(t, session.FileHash, material.FileHash)
	assert.Equal(t, []string{material.ID}, f.enqueued)
	assert.Equal(t, models.UploadStatusUsed, f.uploadRepo.sessions[session.ID].Status)
}

func TestMaterialCreateRejectsDuplicateHash(t *testing.T) {
	f := newMaterialFixture(t)
	claims := studentClaims("u1", "Engineering", "Computer Science")
	hash := sha256hex("same-bytes")

	first := f.storedUpload(t, "u1", hash)
	_, err := f.svc.Create(context.Background(), claims, dto.CreateMaterialRequest{
		UploadID: first.ID,
		Title:    "First copy",
		Scope:    models.ScopePublic,
	})
	require.NoError(t, err)

	second := f.storedUpload(t, "u1", hash)
	_, err = f.svc.Create(context.Background(), claims, dto.CreateMaterialRequest{
		UploadID: second.ID,
		Title:    "Second copy",
		Scope:    models.ScopePublic,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateFile.Code, appErr.Code)
}

func TestMaterialCreateCourseScopeRequiresCourse(t *testing.T) {
	f := newMaterialFixture(t)
	claims := studentClaims("u1", "Engineering", "Computer Science")
	session := f.storedUpload(t, "u1", sha256hex("payload-b"))

	_, err := f.svc.Create(context.Background(), claims, dto.CreateMaterialRequest{
		UploadID: session.ID,
		Title:    "Course material",
		Scope:    models.ScopeCourse,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestMaterialCheckDuplicate(t *testing.T) {
	f := newMaterialFixture(t)
	claims := studentClaims("u1", "Engineering", "Computer Science")
	hash := sha256hex("existing")
	existing := &models.Material{OwnerID: "u2", Scope: models.ScopePublic, FileHash: hash}
	require.NoError(t, f.repo.Create(context.Background(), existing))

	res, err := f.svc.CheckDuplicate(context.Background(), claims, dto.CheckDuplicateRequest{FileHash: hash})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	require.NotNil(t, res.MaterialID)
	assert.Equal(t, existing.ID, *res.MaterialID)

	res, err = f.svc.CheckDuplicate(context.Background(), claims, dto.CheckDuplicateRequest{FileHash: sha256hex("novel")})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestMaterialPresignRejectsVisibleDuplicate(t *testing.T) {
	f := newMaterialFixture(t)
	claims := studentClaims("u1", "Engineering", "Computer Science")
	hash := sha256hex("already-uploaded")
	existing := &models.Material{OwnerID: "u2", Scope: models.ScopePublic, FileHash: hash}
	require.NoError(t, f.repo.Create(context.Background(), existing))

	_, err := f.svc.PresignUpload(context.Background(), claims, dto.PresignRequest{
		FileName: "notes.txt",
		FileSize: 10,
		MimeType: "text/plain",
		FileHash: hash,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateFile.Code, appErr.Code)
	assert.Contains(t, appErr.Message, existing.ID)

	res, err := f.svc.PresignUpload(context.Background(), claims, dto.PresignRequest{
		FileName: "notes.txt",
		FileSize: 10,
		MimeType: "text/plain",
		FileHash: sha256hex("novel-bytes"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.UploadID)
}

func TestMaterialGetHidesOutOfScope(t *testing.T) {
	f := newMaterialFixture(t)
	f.users.users["owner"] = &models.User{ID: "owner", Faculty: "Science", Department: "Physics"}
	material := &models.Material{OwnerID: "owner", Scope: models.ScopeFaculty, Title: "Faculty only"}
	require.NoError(t, f.repo.Create(context.Background(), material))

	_, err := f.svc.Get(context.Background(), studentClaims("outsider", "Engineering", "Computer Science"), material.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	got, err := f.svc.Get(context.Background(), studentClaims("peer", "Science", "Physics"), material.ID)
	require.NoError(t, err)
	assert.Equal(t, material.ID, got.ID)
}

func TestMaterialGetCourseScopeByDepartment(t *testing.T) {
	f := newMaterialFixture(t)
	courseID := "c1"
	f.courses.courses[courseID] = &models.Course{ID: courseID, Department: "Computer Science"}
	material := &models.Material{OwnerID: "owner", Scope: models.ScopeCourse, CourseID: &courseID}
	require.NoError(t, f.repo.Create(context.Background(), material))

	got, err := f.svc.Get(context.Background(), studentClaims("peer", "Engineering", "Computer Science"), material.ID)
	require.NoError(t, err)
	assert.Equal(t, material.ID, got.ID)

	_, err = f.svc.Get(context.Background(), studentClaims("outsider", "Engineering", "Electrical"), material.ID)
	require.Error(t, err)
}

func TestMaterialStaffSeesEverything(t *testing.T) {
	f := newMaterialFixture(t)
	material := &models.Material{OwnerID: "owner", Scope: models.ScopePrivate, Title: "Private"}
	require.NoError(t, f.repo.Create(context.Background(), material))

	got, err := f.svc.Get(context.Background(), &models.JWTClaims{UserID: "mod", Role: models.RoleModerator}, material.ID)
	require.NoError(t, err)
	assert.Equal(t, material.ID, got.ID)
}

func TestMaterialDownloadRoundTrip(t *testing.T) {
	f := newMaterialFixture(t)
	claims := studentClaims("u1", "Engineering", "Computer Science")
	content := "stored material bytes"
	key := "materials/m1/notes.txt"
	_, err := f.files.Put(context.Background(), key, strings.NewReader(content), int64(len(content)), "text/plain")
	require.NoError(t, err)

	material := &models.Material{
		OwnerID:         "u1",
		Scope:           models.ScopePrivate,
		FileName:        "notes.txt",
		MimeType:        "text/plain",
		StorageProvider: storage.ProviderLocal,
		StorageKey:      key,
	}
	require.NoError(t, f.repo.Create(context.Background(), material))

	link, err := f.svc.DownloadURL(context.Background(), claims, material.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/materials/download/"))

	token := strings.TrimPrefix(link.URL, "/materials/download/")
	got, reader, err := f.svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
	assert.Equal(t, material.ID, got.ID)
}

func TestMaterialDeleteRequiresOwnerOrStaff(t *testing.T) {
	f := newMaterialFixture(t)
	material := &models.Material{OwnerID: "owner", Scope: models.ScopePublic}
	require.NoError(t, f.repo.Create(context.Background(), material))

	err := f.svc.Delete(context.Background(), studentClaims("intruder", "", ""), material.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	err = f.svc.Delete(context.Background(), studentClaims("owner", "", ""), material.ID)
	require.NoError(t, err)
	assert.Contains(t, f.repo.deleted, material.ID)
}
