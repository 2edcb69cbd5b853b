package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/storage"
)

type uploadRepository interface {
	Create(ctx context.Context, s *models.UploadSession) error
	FindByID(ctx context.Context, id string) (*models.UploadSession, error)
	AddChunk(ctx context.Context, id string, index int) error
	MarkStored(ctx context.Context, id, provider, key string) error
	MarkUsed(ctx context.Context, id string) (bool, error)
	MarkAborted(ctx context.Context, id string) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.UploadSession, error)
	Delete(ctx context.Context, id string) error
}

var _ uploadRepository = (*repository.UploadRepository)(nil)

// UploadService drives both upload paths: the one-shot signed PUT and the
// chunked resumable session. Bytes are staged on local disk, re-hashed, and
// only then promoted to the durable store.
type UploadService struct {
	repo      uploadRepository
	staging   *storage.LocalStore
	files     *storage.FallbackStore
	signer    *storage.Signer
	cfg       config.UploadsConfig
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUploadService constructs an UploadService instance.
func NewUploadService(repo uploadRepository, staging *storage.LocalStore, files *storage.FallbackStore, signer *storage.Signer, cfg config.UploadsConfig, validate *validator.Validate, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UploadService{repo: repo, staging: staging, files: files, signer: signer, cfg: cfg, validator: validate, logger: logger}
}

// SetMetrics attaches the upload counters. Optional.
func (s *UploadService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// Presign reserves a one-shot upload slot and returns the signed PUT target.
func (s *UploadService) Presign(ctx context.Context, uploaderID string, req dto.PresignRequest) (*dto.PresignResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid presign payload")
	}
	if err := s.checkFileLimits(req.FileSize, req.MimeType); err != nil {
		return nil, err
	}

	session := &models.UploadSession{
		UploaderID: uploaderID,
		Mode:       models.UploadModeSingle,
		FileName:   req.FileName,
		FileSize:   req.FileSize,
		MimeType:   req.MimeType,
		FileHash:   strings.ToLower(req.FileHash),
		Status:     models.UploadStatusPending,
		ExpiresAt:  time.Now().UTC().Add(s.cfg.SignedURLTTL),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create upload session")
	}

	token, expiresAt, err := s.signer.Generate(session.ID, objectKey(session))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign upload url")
	}

	return &dto.PresignResponse{
		UploadID:  session.ID,
		Method:    "PUT",
		URL:       "/materials/upload/" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Receive accepts the body of a signed one-shot PUT. The bytes are staged,
// re-hashed, verified against the declared digest, then stored durably.
func (s *UploadService) Receive(ctx context.Context, token string, body io.Reader) (*models.UploadSession, error) {
	sessionID, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid upload token")
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.UploadStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload session already consumed")
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "upload session expired")
	}

	stagingKey := session.ID + "/payload"
	hasher := sha256.New()
	limited := io.LimitReader(body, session.FileSize+1)
	counter := &countingReader{r: io.TeeReader(limited, hasher)}
	if err := s.staging.Put(ctx, stagingKey, counter, session.FileSize, session.MimeType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage upload")
	}
	defer func() {
		if err := s.staging.RemoveAll(session.ID); err != nil {
			s.logger.Warn("failed to clean staging dir", zap.String("session_id", session.ID), zap.Error(err))
		}
	}()

	if counter.n != session.FileSize {
		return nil, appErrors.Clone(appErrors.ErrHashMismatch, "uploaded size does not match the declared size")
	}
	if digest := hex.EncodeToString(hasher.Sum(nil)); digest != session.FileHash {
		return nil, appErrors.ErrHashMismatch
	}

	stored, err := s.promote(ctx, session, stagingKey, key)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveUpload("direct", stored.StorageProvider)
	}
	return stored, nil
}

// CreateSession opens a chunked resumable upload.
func (s *UploadService) CreateSession(ctx context.Context, uploaderID string, req dto.CreateUploadSessionRequest) (*dto.UploadSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if err := s.checkFileLimits(req.FileSize, req.MimeType); err != nil {
		return nil, err
	}
	if req.ChunkSize < s.cfg.MinChunkSizeBytes || req.ChunkSize > s.cfg.MaxChunkSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("chunk size must be between %d and %d bytes", s.cfg.MinChunkSizeBytes, s.cfg.MaxChunkSizeBytes))
	}

	chunkCount := int((req.FileSize + req.ChunkSize - 1) / req.ChunkSize)
	session := &models.UploadSession{
		UploaderID: uploaderID,
		Mode:       models.UploadModeChunked,
		FileName:   req.FileName,
		FileSize:   req.FileSize,
		MimeType:   req.MimeType,
		FileHash:   strings.ToLower(req.FileHash),
		ChunkSize:  req.ChunkSize,
		ChunkCount: chunkCount,
		Received:   models.ChunkSet{},
		Status:     models.UploadStatusPending,
		ExpiresAt:  time.Now().UTC().Add(s.cfg.SessionTTL),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create upload session")
	}

	resp := dto.FromSession(session)
	return &resp, nil
}

// PutChunk stages one chunk of a resumable upload. Chunks are 1-based and
// idempotent: re-sending a received chunk overwrites the staged copy.
func (s *UploadService) PutChunk(ctx context.Context, uploaderID, sessionID string, index int, body io.Reader) (*dto.UploadSessionResponse, error) {
	session, err := s.getOwnedSession(ctx, sessionID, uploaderID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.UploadStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload session is not accepting chunks")
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "upload session expired")
	}
	if index < 1 || index > session.ChunkCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("chunk index must be between 1 and %d", session.ChunkCount))
	}

	limited := io.LimitReader(body, session.ChunkSize+1)
	counter := &countingReader{r: limited}
	if err := s.staging.Put(ctx, chunkKey(session.ID, index), counter, session.ChunkSize, session.MimeType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage chunk")
	}
	if counter.n > session.ChunkSize {
		return nil, appErrors.Clone(appErrors.ErrFileTooLarge, "chunk exceeds the declared chunk size")
	}

	if err := s.repo.AddChunk(ctx, session.ID, index); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record chunk")
	}

	if !session.Received.Has(index) {
		session.Received = append(session.Received, index)
	}
	resp := dto.FromSession(session)
	return &resp, nil
}

// Progress reports which chunks the server holds so a client can resume.
func (s *UploadService) Progress(ctx context.Context, uploaderID, sessionID string) (*dto.UploadSessionResponse, error) {
	session, err := s.getOwnedSession(ctx, sessionID, uploaderID)
	if err != nil {
		return nil, err
	}
	resp := dto.FromSession(session)
	return &resp, nil
}

// Complete assembles the staged chunks in order, verifies the digest and
// promotes the file to durable storage.
func (s *UploadService) Complete(ctx context.Context, uploaderID, sessionID string) (*models.UploadSession, error) {
	session, err := s.getOwnedSession(ctx, sessionID, uploaderID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.UploadStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload session already consumed")
	}
	for i := 1; i <= session.ChunkCount; i++ {
		if !session.Received.Has(i) {
			return nil, appErrors.Clone(appErrors.ErrUploadIncomplete, fmt.Sprintf("chunk %d is missing", i))
		}
	}

	assembledKey := session.ID + "/assembled"
	hasher := sha256.New()
	counter := &countingReader{}
	pr, pw := io.Pipe()
	go func() {
		var failed error
		for i := 1; i <= session.ChunkCount; i++ {
			chunk, err := s.staging.Get(ctx, chunkKey(session.ID, i))
			if err != nil {
				failed = fmt.Errorf("open chunk %d: %w", i, err)
				break
			}
			_, err = io.Copy(pw, chunk)
			chunk.Close()
			if err != nil {
				failed = fmt.Errorf("copy chunk %d: %w", i, err)
				break
			}
		}
		pw.CloseWithError(failed)
	}()

	counter.r = io.TeeReader(pr, hasher)
	if err := s.staging.Put(ctx, assembledKey, counter, session.FileSize, session.MimeType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assemble upload")
	}
	defer func() {
		if err := s.staging.RemoveAll(session.ID); err != nil {
			s.logger.Warn("failed to clean staging dir", zap.String("session_id", session.ID), zap.Error(err))
		}
	}()

	if counter.n != session.FileSize {
		return nil, appErrors.Clone(appErrors.ErrHashMismatch, "assembled size does not match the declared size")
	}
	if digest := hex.EncodeToString(hasher.Sum(nil)); digest != session.FileHash {
		return nil, appErrors.ErrHashMismatch
	}

	stored, err := s.promote(ctx, session, assembledKey, objectKey(session))
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveUpload("chunked", stored.StorageProvider)
	}
	return stored, nil
}

// Abort cancels a session and discards any staged chunks.
func (s *UploadService) Abort(ctx context.Context, uploaderID, sessionID string) error {
	session, err := s.getOwnedSession(ctx, sessionID, uploaderID)
	if err != nil {
		return err
	}
	if session.Status == models.UploadStatusUsed {
		return appErrors.Clone(appErrors.ErrConflict, "upload session already consumed")
	}
	if err := s.repo.MarkAborted(ctx, session.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to abort upload session")
	}
	if err := s.staging.RemoveAll(session.ID); err != nil {
		s.logger.Warn("failed to clean staging dir", zap.String("session_id", session.ID), zap.Error(err))
	}
	if session.Status == models.UploadStatusStored && session.StorageKey != "" {
		if err := s.files.Delete(ctx, session.StorageProvider, session.StorageKey); err != nil {
			s.logger.Warn("failed to delete stored upload", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return nil
}

// Consume claims a stored session on behalf of material creation. Returns the
// session exactly once; later calls fail with a conflict.
func (s *UploadService) Consume(ctx context.Context, uploaderID, sessionID string) (*models.UploadSession, error) {
	session, err := s.getOwnedSession(ctx, sessionID, uploaderID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.UploadStatusStored {
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload has not finished storing")
	}
	ok, err := s.repo.MarkUsed(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume upload session")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "upload session already consumed")
	}
	session.Status = models.UploadStatusUsed
	return session, nil
}

// SweepExpired reclaims staging space and dangling stored objects from
// sessions past their deadline. Runs on a ticker from main.
func (s *UploadService) SweepExpired(ctx context.Context) int {
	sessions, err := s.repo.ListExpired(ctx, time.Now().UTC(), 200)
	if err != nil {
		s.logger.Error("failed to list expired upload sessions", zap.Error(err))
		return 0
	}
	cleaned := 0
	for _, session := range sessions {
		if err := s.staging.RemoveAll(session.ID); err != nil {
			s.logger.Warn("failed to clean staging dir", zap.String("session_id", session.ID), zap.Error(err))
		}
		if session.Status == models.UploadStatusStored && session.StorageKey != "" {
			if err := s.files.Delete(ctx, session.StorageProvider, session.StorageKey); err != nil {
				s.logger.Warn("failed to delete stored upload", zap.String("session_id", session.ID), zap.Error(err))
				continue
			}
		}
		if err := s.repo.MarkAborted(ctx, session.ID); err != nil {
			s.logger.Warn("failed to abort expired session", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		cleaned++
	}
	if cleaned > 0 {
		s.logger.Info("swept expired upload sessions", zap.Int("count", cleaned))
	}
	return cleaned
}

func (s *UploadService) promote(ctx context.Context, session *models.UploadSession, stagingKey, key string) (*models.UploadSession, error) {
	staged, err := s.staging.Open(stagingKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open staged upload")
	}
	defer staged.Close()

	provider, err := s.files.Put(ctx, key, staged, session.FileSize, session.MimeType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	if err := s.repo.MarkStored(ctx, session.ID, provider, key); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise upload session")
	}

	session.Status = models.UploadStatusStored
	session.StorageProvider = provider
	session.StorageKey = key
	return session, nil
}

func (s *UploadService) checkFileLimits(size int64, mimeType string) error {
	if s.cfg.MaxFileSizeBytes > 0 && size > s.cfg.MaxFileSizeBytes {
		return appErrors.ErrFileTooLarge
	}
	if len(s.cfg.AllowedMIMEs) > 0 {
		allowed := false
		for _, m := range s.cfg.AllowedMIMEs {
			if strings.EqualFold(m, mimeType) {
				allowed = true
				break
			}
		}
		if !allowed {
			return appErrors.ErrUnsupportedMedia
		}
	}
	return nil
}

func (s *UploadService) getSession(ctx context.Context, id string) (*models.UploadSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upload session")
	}
	return session, nil
}

func (s *UploadService) getOwnedSession(ctx context.Context, id, uploaderID string) (*models.UploadSession, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.UploaderID != uploaderID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "upload session belongs to another user")
	}
	return session, nil
}

func objectKey(session *models.UploadSession) string {
	return fmt.Sprintf("materials/%s/%s", session.ID, session.FileName)
}

func chunkKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/chunk_%05d", sessionID, index)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
