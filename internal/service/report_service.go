package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
	"github.com/studyhub-io/studyhub-api/pkg/export"
	"github.com/studyhub-io/studyhub-api/pkg/jobs"
	"github.com/studyhub-io/studyhub-api/pkg/storage"
)

const jobTypeReport = "admin.report"

type reportRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error
	MarkFinished(ctx context.Context, id, resultURL string) error
	MarkFailed(ctx context.Context, id, message string) error
	ListUnfinished(ctx context.Context) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.ReportJob, error)
	Delete(ctx context.Context, id string) error
}

var _ reportRepository = (*repository.ReportRepository)(nil)

type flagLister interface {
	List(ctx context.Context, status *models.FlagStatus, page, pageSize int) ([]models.Flag, int, error)
}

// ReportService generates admin exports (usage and moderation) in the
// background and serves them through short-lived signed links.
type ReportService struct {
	repo      reportRepository
	stats     statsRepository
	materials materialStatusCounter
	flags     flagLister
	store     *storage.LocalStore
	signer    *storage.Signer
	csv       *export.CSVRenderer
	pdf       *export.PDFRenderer
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService constructs the report pipeline and its worker queue.
func NewReportService(repo reportRepository, stats statsRepository, materials materialStatusCounter, flags flagLister, store *storage.LocalStore, signer *storage.Signer, cfg config.ReportsConfig, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	s := &ReportService{
		repo:      repo,
		stats:     stats,
		materials: materials,
		flags:     flags,
		store:     store,
		signer:    signer,
		csv:       export.NewCSVRenderer(),
		pdf:       export.NewPDFRenderer(),
		validator: validate,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("reports", s.handle, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the report workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Stats exposes queue counters for the admin queue-status endpoint.
func (s *ReportService) Stats() jobs.Stats {
	return s.queue.Snapshot()
}

// Request enqueues a report job and acknowledges it immediately.
func (s *ReportService) Request(ctx context.Context, claims *models.JWTClaims, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if req.Type != models.ReportTypeUsage && req.Type != models.ReportTypeModeration {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report type")
	}
	if req.Format != models.ReportFormatCSV && req.Format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report format")
	}

	job := &models.ReportJob{
		Type:      req.Type,
		Params:    models.ReportJobParams{Format: req.Format},
		Status:    models.ReportStatusQueued,
		CreatedBy: claims.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.enqueue(job.ID); err != nil {
		s.logger.Error("failed to enqueue report job", zap.String("job_id", job.ID), zap.Error(err))
	}
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// Status reports job progress and, when finished, the signed download URL.
func (s *ReportService) Status(ctx context.Context, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return &dto.ReportStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
		Error:     job.ErrorMessage,
	}, nil
}

// Open resolves a signed download token to the rendered artifact.
func (s *ReportService) Open(ctx context.Context, token string) (*models.ReportJob, []byte, error) {
	jobID, filename, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid report token")
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "report is not finished")
	}

	f, err := s.store.Open(filename)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "report artifact no longer exists")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read report artifact")
	}
	return job, data, nil
}

// Recover re-enqueues jobs interrupted by a restart. Called once on startup.
func (s *ReportService) Recover(ctx context.Context) {
	unfinished, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		s.logger.Error("failed to list unfinished report jobs", zap.Error(err))
		return
	}
	for _, job := range unfinished {
		if err := s.repo.UpdateStatus(ctx, job.ID, models.ReportStatusQueued, 0); err != nil {
			s.logger.Warn("failed to requeue report job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if err := s.enqueue(job.ID); err != nil {
			s.logger.Error("failed to enqueue recovered report job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(unfinished) > 0 {
		s.logger.Info("recovered report jobs", zap.Int("count", len(unfinished)))
	}
}

// CleanupFinished deletes artifacts and rows for reports past the retention
// cutoff. Runs on a ticker from main.
func (s *ReportService) CleanupFinished(ctx context.Context, retention time.Duration) {
	jobsOld, err := s.repo.ListFinishedBefore(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		s.logger.Error("failed to list finished report jobs", zap.Error(err))
		return
	}
	for _, job := range jobsOld {
		if err := s.store.RemoveAll(job.ID); err != nil {
			s.logger.Warn("failed to remove report artifact", zap.String("job_id", job.ID), zap.Error(err))
		}
		if err := s.repo.Delete(ctx, job.ID); err != nil {
			s.logger.Warn("failed to delete report job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

func (s *ReportService) enqueue(jobID string) error {
	return s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypeReport, Payload: jobID})
}

func (s *ReportService) handle(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	record, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load report job: %w", err)
	}
	if record.Status == models.ReportStatusFinished {
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, record.ID, models.ReportStatusProcessing, 10); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	dataset, err := s.buildDataset(ctx, record)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to mark report failed", zap.String("job_id", record.ID), zap.Error(markErr))
		}
		return fmt.Errorf("build dataset: %w", err)
	}
	if err := s.repo.UpdateStatus(ctx, record.ID, models.ReportStatusProcessing, 60); err != nil {
		s.logger.Warn("failed to update report progress", zap.String("job_id", record.ID), zap.Error(err))
	}

	var rendered []byte
	ext := "csv"
	switch record.Params.Format {
	case models.ReportFormatPDF:
		rendered, err = s.pdf.Render(dataset)
		ext = "pdf"
	default:
		rendered, err = s.csv.Render(dataset)
	}
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to mark report failed", zap.String("job_id", record.ID), zap.Error(markErr))
		}
		return fmt.Errorf("render report: %w", err)
	}

	filename := fmt.Sprintf("%s/%s.%s", record.ID, record.Type, ext)
	if _, err := s.store.Save(filename, rendered); err != nil {
		return fmt.Errorf("store report artifact: %w", err)
	}

	token, _, err := s.signer.Generate(record.ID, filename)
	if err != nil {
		return fmt.Errorf("sign report url: %w", err)
	}
	if err := s.repo.MarkFinished(ctx, record.ID, "/admin/reports/download/"+token); err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}

	s.logger.Info("report generated",
		zap.String("job_id", record.ID),
		zap.String("type", string(record.Type)),
		zap.String("format", string(record.Params.Format)),
	)
	return nil
}

func (s *ReportService) buildDataset(ctx context.Context, record *models.ReportJob) (export.Dataset, error) {
	switch record.Type {
	case models.ReportTypeModeration:
		return s.moderationDataset(ctx)
	default:
		return s.usageDataset(ctx)
	}
}

func (s *ReportService) usageDataset(ctx context.Context) (export.Dataset, error) {
	users, err := s.stats.CountUsers(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	conversations, err := s.stats.CountConversations(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	quizzes, err := s.stats.CountQuizzes(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	byStatus, err := s.materials.CountByStatus(ctx)
	if err != nil {
		return export.Dataset{}, err
	}

	rows := []map[string]string{
		{"Metric": "active users", "Value": strconv.Itoa(users)},
		{"Metric": "conversations", "Value": strconv.Itoa(conversations)},
		{"Metric": "quizzes", "Value": strconv.Itoa(quizzes)},
	}
	for _, status := range []models.MaterialStatus{models.MaterialStatusPending, models.MaterialStatusProcessing, models.MaterialStatusReady, models.MaterialStatusFailed} {
		rows = append(rows, map[string]string{"Metric": "materials " + string(status), "Value": strconv.Itoa(byStatus[status])})
	}

	return export.Dataset{
		Title:   "Platform Usage Report",
		Headers: []string{"Metric", "Value"},
		Rows:    rows,
	}, nil
}

func (s *ReportService) moderationDataset(ctx context.Context) (export.Dataset, error) {
	flags, _, err := s.flags.List(ctx, nil, 1, 100)
	if err != nil {
		return export.Dataset{}, err
	}
	rows := make([]map[string]string, 0, len(flags))
	for _, f := range flags {
		resolver := ""
		if f.ResolverID != nil {
			resolver = *f.ResolverID
		}
		rows = append(rows, map[string]string{
			"Flag":     f.ID,
			"Material": f.MaterialID,
			"Reason":   string(f.Reason),
			"Status":   string(f.Status),
			"Resolver": resolver,
			"Created":  f.CreatedAt.Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Title:   "Moderation Report",
		Headers: []string{"Flag", "Material", "Reason", "Status", "Resolver", "Created"},
		Rows:    rows,
	}, nil
}
