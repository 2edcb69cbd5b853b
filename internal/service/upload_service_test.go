package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
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
	"github.com/studyhub-io/studyhub-api/pkg/config"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/storage"
)

type mockUploadRepo struct {
	sessions map[string]*models.UploadSession
}

func newMockUploadRepo() *mockUploadRepo {
	return &mockUploadRepo{sessions: make(map[string]*models.UploadSession)}
}

func (m *mockUploadRepo) Create(ctx context.Context, s *models.UploadSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *mockUploadRepo) FindByID(ctx context.Context, id string) (*models.UploadSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *s
	clone.Received = append(models.ChunkSet{}, s.Received...)
	return &clone, nil
}

func (m *mockUploadRepo) AddChunk(ctx context.Context, id string, index int) error {
	s, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	if !s.Received.Has(index) {
		s.Received = append(s.Received, index)
	}
	return nil
}

func (m *mockUploadRepo) MarkStored(ctx context.Context, id, provider, key string) error {
	s, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = models.UploadStatusStored
	s.StorageProvider = provider
	s.StorageKey = key
	return nil
}

func (m *mockUploadRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	s, ok := m.sessions[id]
	if !ok || s.Status != models.UploadStatusStored {
		return false, nil
	}
	s.Status = models.UploadStatusUsed
	return true, nil
}

func (m *mockUploadRepo) MarkAborted(ctx context.Context, id string) error {
	if s, ok := m.sessions[id]; ok {
		s.Status = models.UploadStatusAborted
	}
	return nil
}

func (m *mockUploadRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.UploadSession, error) {
	out := make([]models.UploadSession, 0)
	for _, s := range m.sessions {
		if s.ExpiresAt.Before(now) && (s.Status == models.UploadStatusPending || s.Status == models.UploadStatusStored) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockUploadRepo) Delete(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func newTestUploadService(t *testing.T) (*UploadService, *mockUploadRepo) {
	t.Helper()
	staging, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	durable, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	files := storage.NewFallbackStore(durable, nil, 0, zap.NewNop())
	signer := storage.NewSigner("test-secret", time.Minute)
	repo := newMockUploadRepo()
	cfg := config.UploadsConfig{
		SignedURLTTL:      time.Minute,
		MaxFileSizeBytes:  1 << 20,
		AllowedMIMEs:      []string{"text/plain", "application/pdf"},
		MinChunkSizeBytes: 4,
		MaxChunkSizeBytes: 1 << 10,
		SessionTTL:        time.Hour,
	}
	return NewUploadService(repo, staging, files, signer, cfg, validator.New(), zap.NewNop()), repo
}

func sha256hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func TestUploadPresignAndReceive(t *testing.T) {
	svc, repo := newTestUploadService(t)
	payload := "lecture notes on graph theory"

	res, err := svc.Presign(context.Background(), "u1", dto.PresignRequest{
		FileName: "notes.txt",
		FileSize: int64(len(payload)),
		MimeType: "text/plain",
		FileHash: sha256hex(payload),
	})
	require.NoError(t, err)
	assert.Equal(t, "PUT", res.Method)
	require.True(t, strings.HasPrefix(res.URL, "/materials/upload/"))

	token := strings.TrimPrefix(res.URL, "/materials/upload/")
	session, err := svc.Receive(context.Background(), token, strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusStored, session.Status)
	assert.Equal(t, storage.ProviderLocal, session.StorageProvider)
	assert.Equal(t, models.UploadStatusStored, repo.sessions[res.UploadID].Status)
}

func TestUploadReceiveHashMismatch(t *testing.T) {
	svc, _ := newTestUploadService(t)
	payload := "original content"

	res, err := svc.Presign(context.Background(), "u1", dto.PresignRequest{
		FileName: "notes.txt",
		FileSize: int64(len(payload)),
		MimeType: "text/plain",
		FileHash: sha256hex("something else!!"),
	})
	require.NoError(t, err)

	token := strings.TrimPrefix(res.URL, "/materials/upload/")
	_, err = svc.Receive(context.Background(), token, strings.NewReader(payload))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrHashMismatch.Code, appErr.Code)
}

func TestUploadReceiveRejectsOversizedBody(t *testing.T) {
	svc, _ := newTestUploadService(t)
	payload := "short"

	res, err := svc.Presign(context.Background(), "u1", dto.PresignRequest{
		FileName: "notes.txt",
		FileSize: int64(len(payload)),
		MimeType: "text/plain",
		FileHash: sha256hex(payload),
	})
	require.NoError(t, err)

	token := strings.TrimPrefix(res.URL, "/materials/upload/")
	_, err = svc.Receive(context.Background(), token, strings.NewReader(payload+" and then some"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrHashMismatch.Code, appErr.Code)
}

func TestUploadPresignRejectsUnsupportedMime(t *testing.T) {
	svc, _ := newTestUploadService(t)

	_, err := svc.Presign(context.Background(), "u1", dto.PresignRequest{
		FileName: "malware.exe",
		FileSize: 100,
		MimeType: "application/x-msdownload",
		FileHash: sha256hex("x"),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnsupportedMedia.Code, appErr.Code)
}

func TestChunkedUploadCompletes(t *testing.T) {
	svc, _ := newTestUploadService(t)
	payload := "aaaabbbbcc"

	created, err := svc.CreateSession(context.Background(), "u1", dto.CreateUploadSessionRequest{
		FileName:  "big.txt",
		FileSize:  int64(len(payload)),
		MimeType:  "text/plain",
		FileHash:  sha256hex(payload),
		ChunkSize: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, created.ChunkCount)

	chunks := []string{"aaaa", "bbbb", "cc"}
	for i, chunk := range chunks {
		_, err := svc.PutChunk(context.Background(), "u1", created.ID, i+1, strings.NewReader(chunk))
		require.NoError(t, err)
	}

	progress, err := svc.Progress(context.Background(), "u1", created.ID)
	require.NoError(t, err)
	assert.Len(t, progress.Received, 3)

	session, err := svc.Complete(context.Background(), "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusStored, session.Status)
	assert.NotEmpty(t, session.StorageKey)
}

func TestChunkedUploadCompleteMissingChunk(t *testing.T) {
	svc, _ := newTestUploadService(t)
	payload := "aaaabbbbcc"

	created, err := svc.CreateSession(context.Background(), "u1", dto.CreateUploadSessionRequest{
		FileName:  "big.txt",
		FileSize:  int64(len(payload)),
		MimeType:  "text/plain",
		FileHash:  sha256hex(payload),
		ChunkSize: 4,
	})
	require.NoError(t, err)

	_, err = svc.PutChunk(context.Background(), "u1", created.ID, 1, strings.NewReader("aaaa"))
	require.NoError(t, err)
	_, err = svc.PutChunk(context.Background(), "u1", created.ID, 3, strings.NewReader("cc"))
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), "u1", created.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUploadIncomplete.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "chunk 2")
}

func TestChunkedUploadRejectsForeignSession(t *testing.T) {
	svc, _ := newTestUploadService(t)

	created, err := svc.CreateSession(context.Background(), "u1", dto.CreateUploadSessionRequest{
		FileName:  "big.txt",
		FileSize:  8,
		MimeType:  "text/plain",
		FileHash:  sha256hex("aaaabbbb"),
		ChunkSize: 4,
	})
	require.NoError(t, err)

	_, err = svc.PutChunk(context.Background(), "intruder", created.ID, 1, strings.NewReader("aaaa"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestConsumeIsSingleShot(t *testing.T) {
	svc, repo := newTestUploadService(t)
	session := &models.UploadSession{
		UploaderID:      "u1",
		Mode:            models.UploadModeSingle,
		FileName:        "notes.txt",
		FileSize:        5,
		Status:          models.UploadStatusStored,
		StorageProvider: storage.ProviderLocal,
		StorageKey:      "materials/s1/notes.txt",
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), session))

	first, err := svc.Consume(context.Background(), "u1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusUsed, first.Status)

	_, err = svc.Consume(context.Background(), "u1", session.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestSweepExpired(t *testing.T) {
	svc, repo := newTestUploadService(t)
	expired := &models.UploadSession{
		UploaderID: "u1",
		Mode:       models.UploadModeChunked,
		FileName:   "stale.txt",
		FileSize:   8,
		Status:     models.UploadStatusPending,
		ExpiresAt:  time.Now().Add(-time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), expired))

	cleaned := svc.SweepExpired(context.Background())
	assert.Equal(t, 1, cleaned)
	assert.Equal(t, models.UploadStatusAborted, repo.sessions[expired.ID].Status)
}
