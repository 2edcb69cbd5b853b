package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/jobs"
)

const adminStatsCacheKey = "admin:stats"

type statsRepository interface {
	CountUsers(ctx context.Context) (int, error)
	CountMaterials(ctx context.Context) (int, error)
	CountConversations(ctx context.Context) (int, error)
	CountQuizzes(ctx context.Context) (int, error)
}

var _ statsRepository = (*repository.StatsRepository)(nil)

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type materialStatusCounter interface {
	CountByStatus(ctx context.Context) (map[models.MaterialStatus]int, error)
}

type flagStatusCounter interface {
	CountByStatus(ctx context.Context) (map[models.FlagStatus]int, error)
}

// QueueReporter exposes queue counters for the queue-status endpoint.
type QueueReporter interface {
	Stats() jobs.Stats
}

// AdminService backs the admin dashboard: cached aggregate stats, queue
// gauges and bulk material deletion.
type AdminService struct {
	stats     statsRepository
	materials materialStatusCounter
	flags     flagStatusCounter
	cache     statsCache
	matSvc    *MaterialService
	audit     auditWriter
	queues    []QueueReporter
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdminService constructs an AdminService instance.
func NewAdminService(stats statsRepository, materials materialStatusCounter, flags flagStatusCounter, cache statsCache, matSvc *MaterialService, audit auditWriter, cfg config.AdminStatsConfig, validate *validator.Validate, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AdminService{
		stats:     stats,
		materials: materials,
		flags:     flags,
		cache:     cache,
		matSvc:    matSvc,
		audit:     audit,
		cacheTTL:  cfg.CacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// SetMetrics attaches the cache hit/miss counters. Optional.
func (s *AdminService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// RegisterQueue adds a worker queue to the queue-status report.
func (s *AdminService) RegisterQueue(q QueueReporter) {
	s.queues = append(s.queues, q)
}

// Stats returns the dashboard counters, served from Redis when fresh. The
// cached flag reports whether this call hit the cache.
func (s *AdminService) Stats(ctx context.Context) (*dto.AdminStatsResponse, bool, error) {
	var cached dto.AdminStatsResponse
	if err := s.cache.Get(ctx, adminStatsCacheKey, &cached); err == nil {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(true)
		}
		return &cached, true, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("stats cache read failed", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(false)
	}

	users, err := s.stats.CountUsers(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	materialTotals, err := s.materials.CountByStatus(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count materials")
	}
	conversations, err := s.stats.CountConversations(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count conversations")
	}
	quizzes, err := s.stats.CountQuizzes(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count quizzes")
	}
	flagTotals, err := s.flags.CountByStatus(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count flags")
	}

	byStatus := make(map[string]int, len(materialTotals))
	materials := 0
	for status, n := range materialTotals {
		byStatus[string(status)] = n
		materials += n
	}

	stats := &dto.AdminStatsResponse{
		Users:             users,
		Materials:         materials,
		Conversations:     conversations,
		Quizzes:           quizzes,
		OpenFlags:         flagTotals[models.FlagStatusOpen],
		MaterialsByStatus: byStatus,
		GeneratedAt:       time.Now().UTC(),
	}

	if err := s.cache.Set(ctx, adminStatsCacheKey, stats, s.cacheTTL); err != nil {
		s.logger.Warn("stats cache write failed", zap.Error(err))
	}
	return stats, false, nil
}

// InvalidateStats drops the cached dashboard payload.
func (s *AdminService) InvalidateStats(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, adminStatsCacheKey); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}

// QueueStatus snapshots every registered worker queue.
func (s *AdminService) QueueStatus() dto.QueueStatusResponse {
	stats := make([]jobs.Stats, 0, len(s.queues))
	for _, q := range s.queues {
		stats = append(stats, q.Stats())
	}
	return dto.QueueStatusResponse{Queues: stats}
}

// BulkDelete removes the named materials, reporting a per-id outcome rather
// than failing the batch on the first error.
func (s *AdminService) BulkDelete(ctx context.Context, claims *models.JWTClaims, req dto.BulkDeleteRequest) ([]dto.BulkDeleteResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk delete payload")
	}

	results := make([]dto.BulkDeleteResult, 0, len(req.IDs))
	for _, id := range req.IDs {
		result := dto.BulkDeleteResult{ID: id, Deleted: true}
		if err := s.matSvc.RemoveByID(ctx, id); err != nil {
			result.Deleted = false
			result.Error = appErrors.FromError(err).Message
		}
		results = append(results, result)
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:   &claims.UserID,
		Action:   models.AuditActionBulkDelete,
		Resource: "materials",
	}); err != nil {
		s.logger.Warn("failed to record bulk delete audit log", zap.Error(err))
	}

	s.InvalidateStats(ctx)
	return results, nil
}
