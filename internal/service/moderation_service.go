package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
)

const reputationPenaltyUpheld = -5

type flagRepository interface {
	Create(ctx context.Context, f *models.Flag) error
	FindByID(ctx context.Context, id string) (*models.Flag, error)
	HasOpenFlag(ctx context.Context, materialID, reporterID string) (bool, error)
	List(ctx context.Context, status *models.FlagStatus, page, pageSize int) ([]models.Flag, int, error)
	Resolve(ctx context.Context, id string, status models.FlagStatus, resolverID string) (bool, error)
}

var _ flagRepository = (*repository.FlagRepository)(nil)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ModerationService handles flags against materials and their resolution.
// Upholding a flag removes the material and costs the owner reputation.
type ModerationService struct {
	repo      flagRepository
	materials *MaterialService
	users     reputationAdjuster
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewModerationService constructs a ModerationService instance.
func NewModerationService(repo flagRepository, materials *MaterialService, users reputationAdjuster, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *ModerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ModerationService{repo: repo, materials: materials, users: users, audit: audit, validator: validate, logger: logger}
}

// Flag files a report against a material. A reporter can hold at most one
// open flag per material.
func (s *ModerationService) Flag(ctx context.Context, claims *models.JWTClaims, materialID string, req dto.FlagMaterialRequest) (*models.Flag, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid flag payload")
	}
	if !req.Reason.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown flag reason")
	}

	material, err := s.materials.Get(ctx, claims, materialID)
	if err != nil {
		return nil, err
	}

	open, err := s.repo.HasOpenFlag(ctx, material.ID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open flags")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already have an open flag on this material")
	}

	flag := &models.Flag{
		MaterialID: material.ID,
		ReporterID: claims.UserID,
		Reason:     req.Reason,
		Detail:     req.Detail,
		Status:     models.FlagStatusOpen,
	}
	if err := s.repo.Create(ctx, flag); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create flag")
	}
	return flag, nil
}

// List returns flags for the moderation queue.
func (s *ModerationService) List(ctx context.Context, status *models.FlagStatus, page, pageSize int) ([]models.Flag, *models.Pagination, error) {
	flags, total, err := s.repo.List(ctx, status, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list flags")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return flags, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Resolve closes a flag. UPHELD removes the flagged material and docks the
// owner's reputation; DISMISSED leaves the material untouched.
func (s *ModerationService) Resolve(ctx context.Context, claims *models.JWTClaims, flagID string, req dto.ResolveFlagRequest) (*models.Flag, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}
	outcome := models.FlagStatus(req.Action)
	if outcome != models.FlagStatusUpheld && outcome != models.FlagStatusDismissed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be UPHELD or DISMISSED")
	}

	flag, err := s.repo.FindByID(ctx, flagID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "flag not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load flag")
	}

	ok, err := s.repo.Resolve(ctx, flag.ID, outcome, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve flag")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "flag is already resolved")
	}
	flag.Status = outcome
	flag.ResolverID = &claims.UserID

	if outcome == models.FlagStatusUpheld {
		material, err := s.materials.repo.FindByID(ctx, flag.MaterialID)
		if err == nil {
			if err := s.materials.RemoveByID(ctx, material.ID); err != nil {
				s.logger.Error("failed to remove upheld material", zap.String("material_id", material.ID), zap.Error(err))
			} else if err := s.users.AdjustReputation(ctx, material.OwnerID, reputationPenaltyUpheld); err != nil {
				s.logger.Warn("failed to apply reputation penalty", zap.String("owner_id", material.OwnerID), zap.Error(err))
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("failed to load flagged material", zap.String("material_id", flag.MaterialID), zap.Error(err))
		}
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionFlagResolve,
		Resource:   "flags",
		ResourceID: &flag.ID,
		NewValues:  []byte(`{"action":"` + string(outcome) + `"}`),
	}); err != nil {
		s.logger.Warn("failed to record flag resolution audit log", zap.Error(err))
	}

	return flag, nil
}
