package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/storage"
)

type materialRepository interface {
	Create(ctx context.Context, m *models.Material) error
	FindByID(ctx context.Context, id string) (*models.Material, error)
	FindVisibleByHash(ctx context.Context, hash string, filter models.MaterialFilter) (*models.Material, error)
	List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error)
	Update(ctx context.Context, m *models.Material) error
	Delete(ctx context.Context, id string) error
	FindByIDs(ctx context.Context, ids []string) ([]models.Material, error)
}

var _ materialRepository = (*repository.MaterialRepository)(nil)

type ownerDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseDirectory interface {
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
}

// MaterialService manages the material catalog: duplicate checks, creation
// from consumed uploads, scoped listing, signed downloads and deletion.
type MaterialService struct {
	repo      materialRepository
	users     ownerDirectory
	courses   courseDirectory
	uploads   *UploadService
	files     *storage.FallbackStore
	signer    *storage.Signer
	enqueue   func(materialID string) error
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMaterialService constructs a MaterialService instance.
func NewMaterialService(repo materialRepository, users ownerDirectory, courses courseDirectory, uploads *UploadService, files *storage.FallbackStore, signer *storage.Signer, validate *validator.Validate, logger *zap.Logger) *MaterialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MaterialService{
		repo:      repo,
		users:     users,
		courses:   courses,
		uploads:   uploads,
		files:     files,
		signer:    signer,
		validator: validate,
		logger:    logger,
	}
}

// SetIngestEnqueuer wires the processing pipeline. Set once during startup,
// after the pipeline service is built.
func (s *MaterialService) SetIngestEnqueuer(enqueue func(materialID string) error) {
	s.enqueue = enqueue
}

// CheckDuplicate reports whether an identical file the caller can see already
// exists. Called before any bytes leave the client.
func (s *MaterialService) CheckDuplicate(ctx context.Context, claims *models.JWTClaims, req dto.CheckDuplicateRequest) (*dto.CheckDuplicateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid duplicate check payload")
	}

	filter := viewerFilter(claims)
	existing, err := s.repo.FindVisibleByHash(ctx, strings.ToLower(req.FileHash), filter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.CheckDuplicateResponse{Duplicate: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicates")
	}
	return &dto.CheckDuplicateResponse{Duplicate: true, MaterialID: &existing.ID}, nil
}

// PresignUpload reserves a one-shot upload slot. A hash the caller can
// already see short-circuits with a conflict naming the existing material.
func (s *MaterialService) PresignUpload(ctx context.Context, claims *models.JWTClaims, req dto.PresignRequest) (*dto.PresignResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid presign payload")
	}

	existing, err := s.repo.FindVisibleByHash(ctx, strings.ToLower(req.FileHash), viewerFilter(claims))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicates")
	}
	if err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateFile, fmt.Sprintf("an identical file already exists as material %s", existing.ID))
	}

	return s.uploads.Presign(ctx, claims.UserID, req)
}

// Create promotes a stored upload into a material record and queues it for
// processing. The upload is consumed exactly once.
func (s *MaterialService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateMaterialRequest) (*models.Material, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}
	if !req.Scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown scope")
	}
	if req.Scope == models.ScopeCourse && req.CourseID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course scope requires a course id")
	}
	if req.CourseID != nil {
		if _, err := s.courses.FindCourseByID(ctx, *req.CourseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
	}

	// Reject duplicates again at create time; the pre-check is advisory only.
	filter := viewerFilter(claims)
	session, err := s.uploads.Consume(ctx, claims.UserID, req.UploadID)
	if err != nil {
		return nil, err
	}
	if existing, err := s.repo.FindVisibleByHash(ctx, session.FileHash, filter); err == nil {
		s.logger.Info("duplicate file rejected at create",
			zap.String("upload_id", session.ID),
			zap.String("existing_material_id", existing.ID),
		)
		return nil, appErrors.Clone(appErrors.ErrDuplicateFile, "an identical file already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicates")
	}

	material := &models.Material{
		OwnerID:         claims.UserID,
		CourseID:        req.CourseID,
		Title:           req.Title,
		Description:     req.Description,
		Scope:           req.Scope,
		FileHash:        session.FileHash,
		FileName:        session.FileName,
		FileSize:        session.FileSize,
		MimeType:        session.MimeType,
		StorageProvider: session.StorageProvider,
		StorageKey:      session.StorageKey,
		Status:          models.MaterialStatusPending,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create material")
	}

	if s.enqueue != nil {
		if err := s.enqueue(material.ID); err != nil {
			s.logger.Error("failed to enqueue material for processing", zap.String("material_id", material.ID), zap.Error(err))
		}
	}

	return material, nil
}

// Get loads a material and enforces scope visibility for the caller.
func (s *MaterialService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Material, error) {
	material, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	ok, err := s.canView(ctx, claims, material)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Hide existence from callers outside the material's scope.
		return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
	}
	return material, nil
}

// List returns materials visible to the caller with pagination metadata.
func (s *MaterialService) List(ctx context.Context, claims *models.JWTClaims, filter models.MaterialFilter) ([]models.Material, *models.Pagination, error) {
	viewer := viewerFilter(claims)
	viewer.CourseID = filter.CourseID
	viewer.OwnerID = filter.OwnerID
	viewer.Status = filter.Status
	viewer.Search = filter.Search
	viewer.Page = filter.Page
	viewer.PageSize = filter.PageSize

	materials, total, err := s.repo.List(ctx, viewer)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	page := viewer.Page
	if page < 1 {
		page = 1
	}
	pageSize := viewer.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return materials, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// DownloadURL issues a short-lived signed link for the material's file.
func (s *MaterialService) DownloadURL(ctx context.Context, claims *models.JWTClaims, id string) (*dto.DownloadURLResponse, error) {
	material, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(material.ID, material.StorageProvider+":"+material.StorageKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &dto.DownloadURLResponse{
		URL:       "/materials/download/" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Download resolves a signed token and opens the underlying file.
func (s *MaterialService) Download(ctx context.Context, token string) (*models.Material, io.ReadCloser, error) {
	materialID, providerKey, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	material, err := s.repo.FindByID(ctx, materialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}

	provider, key := material.StorageProvider, material.StorageKey
	if idx := strings.IndexByte(providerKey, ':'); idx > 0 {
		provider, key = providerKey[:idx], providerKey[idx+1:]
	}
	if provider != material.StorageProvider || key != material.StorageKey {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token no longer valid")
	}

	reader, err := s.files.Get(ctx, provider, key)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open material file")
	}
	return material, reader, nil
}

// Delete removes a material and its stored file. Owners and staff only.
func (s *MaterialService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	material, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if claims != nil && material.OwnerID != claims.UserID && !isStaff(claims.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owner or staff can delete a material")
	}
	return s.remove(ctx, material)
}

// RemoveByID deletes a material without a permission check. Used by the
// moderation and bulk-delete flows, which enforce their own authorisation.
func (s *MaterialService) RemoveByID(ctx context.Context, id string) error {
	material, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	return s.remove(ctx, material)
}

func (s *MaterialService) remove(ctx context.Context, material *models.Material) error {
	if material.StorageKey != "" {
		if err := s.files.Delete(ctx, material.StorageProvider, material.StorageKey); err != nil {
			s.logger.Warn("failed to delete stored file",
				zap.String("material_id", material.ID),
				zap.String("provider", material.StorageProvider),
				zap.Error(err),
			)
		}
	}
	if err := s.repo.Delete(ctx, material.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete material")
	}
	return nil
}

func (s *MaterialService) canView(ctx context.Context, claims *models.JWTClaims, m *models.Material) (bool, error) {
	if claims == nil {
		return false, nil
	}
	if isStaff(claims.Role) || m.OwnerID == claims.UserID {
		return true, nil
	}
	switch m.Scope {
	case models.ScopePublic:
		return true, nil
	case models.ScopePrivate:
		return false, nil
	case models.ScopeFaculty, models.ScopeDepartment:
		owner, err := s.users.FindByID(ctx, m.OwnerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load owner")
		}
		if m.Scope == models.ScopeFaculty {
			return owner.Faculty != "" && owner.Faculty == claims.Faculty, nil
		}
		return owner.Department != "" && owner.Department == claims.Department, nil
	case models.ScopeCourse:
		if m.CourseID == nil {
			return false, nil
		}
		course, err := s.courses.FindCourseByID(ctx, *m.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		return course.Department == claims.Department, nil
	}
	return false, nil
}

func viewerFilter(claims *models.JWTClaims) models.MaterialFilter {
	if claims == nil {
		return models.MaterialFilter{}
	}
	return models.MaterialFilter{
		ViewerID:         claims.UserID,
		ViewerFaculty:    claims.Faculty,
		ViewerDepartment: claims.Department,
		ViewerIsStaff:    isStaff(claims.Role),
	}
}

func isStaff(role models.UserRole) bool {
	return role == models.RoleAdmin || role == models.RoleModerator
}
