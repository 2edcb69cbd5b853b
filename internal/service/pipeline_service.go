package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	"github.com/studyhub-io/studyhub-api/pkg/jobs"
	"github.com/studyhub-io/studyhub-api/pkg/storage"
	"github.com/studyhub-io/studyhub-api/pkg/ws"
)

const (
	jobTypeIngest = "material.ingest"

	// extractLimitBytes caps how much of a file is read for text extraction.
	extractLimitBytes = 4 << 20
	// summaryInputChars caps the extracted text handed to the model.
	summaryInputChars = 20000
)

type pipelineMaterialRepository interface {
	FindByID(ctx context.Context, id string) (*models.Material, error)
	UpdateStatus(ctx context.Context, id string, status models.MaterialStatus, errorMessage *string) error
	UpdateSummary(ctx context.Context, id, summary string) error
}

var _ pipelineMaterialRepository = (*repository.MaterialRepository)(nil)

type reputationAdjuster interface {
	AdjustReputation(ctx context.Context, id string, delta int) error
}

type textGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type statusNotifier interface {
	NotifyStatus(update ws.StatusUpdate)
}

// PipelineService runs the ingestion pipeline: extract text from a stored
// file, summarise it and move the material from pending through processing to
// ready or failed. Status transitions are pushed to connected clients.
type PipelineService struct {
	repo     pipelineMaterialRepository
	users    reputationAdjuster
	files    *storage.FallbackStore
	llm      textGenerator
	notifier statusNotifier
	queue    *jobs.Queue
	retries  int
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewPipelineService constructs the pipeline and its worker queue.
func NewPipelineService(repo pipelineMaterialRepository, users reputationAdjuster, files *storage.FallbackStore, generator textGenerator, notifier statusNotifier, cfg config.PipelineConfig, logger *zap.Logger) *PipelineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	s := &PipelineService{
		repo:     repo,
		users:    users,
		files:    files,
		llm:      generator,
		notifier: notifier,
		retries:  retries,
		logger:   logger,
	}
	s.queue = jobs.NewQueue("ingest", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// SetMetrics attaches the ingest duration histogram. Optional.
func (s *PipelineService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// Start launches the worker pool.
func (s *PipelineService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *PipelineService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules a material for processing.
func (s *PipelineService) Enqueue(materialID string) error {
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeIngest,
		Payload: materialID,
	})
}

// Stats exposes queue counters for the admin queue-status endpoint.
func (s *PipelineService) Stats() jobs.Stats {
	return s.queue.Snapshot()
}

func (s *PipelineService) handle(ctx context.Context, job jobs.Job) error {
	materialID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	start := time.Now()

	material, err := s.repo.FindByID(ctx, materialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Deleted while queued; nothing to do.
			return nil
		}
		return fmt.Errorf("load material: %w", err)
	}
	if material.Status == models.MaterialStatusReady {
		return nil
	}

	if err := s.transition(ctx, material, models.MaterialStatusProcessing, nil); err != nil {
		return err
	}

	summary, err := s.summarise(ctx, material)
	if err != nil {
		// Final attempt marks the material failed so clients stop waiting.
		if job.Attempt >= s.retries {
			msg := err.Error()
			if terr := s.transition(ctx, material, models.MaterialStatusFailed, &msg); terr != nil {
				s.logger.Error("failed to mark material failed", zap.String("material_id", material.ID), zap.Error(terr))
			}
		}
		return fmt.Errorf("summarise material %s: %w", material.ID, err)
	}

	if err := s.repo.UpdateSummary(ctx, material.ID, summary); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	s.notifier.NotifyStatus(ws.StatusUpdate{MaterialID: material.ID, Status: string(models.MaterialStatusReady)})

	if err := s.users.AdjustReputation(ctx, material.OwnerID, 1); err != nil {
		s.logger.Warn("failed to award reputation", zap.String("owner_id", material.OwnerID), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.ObserveIngest(time.Since(start))
	}

	s.logger.Info("material processed",
		zap.String("material_id", material.ID),
		zap.Int("summary_chars", len(summary)),
	)
	return nil
}

func (s *PipelineService) transition(ctx context.Context, material *models.Material, status models.MaterialStatus, errorMessage *string) error {
	if err := s.repo.UpdateStatus(ctx, material.ID, status, errorMessage); err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	update := ws.StatusUpdate{MaterialID: material.ID, Status: string(status)}
	if errorMessage != nil {
		update.Error = *errorMessage
	}
	s.notifier.NotifyStatus(update)
	return nil
}

func (s *PipelineService) summarise(ctx context.Context, material *models.Material) (string, error) {
	text, err := s.extractText(ctx, material)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		// Nothing to summarise; the file is stored as-is and still usable.
		s.logger.Info("no extractable text, skipping summary", zap.String("material_id", material.ID))
		return "", nil
	}

	prompt := fmt.Sprintf(
		"Summarise the following study material titled %q in at most 200 words. Focus on the key concepts a student should remember.\n\n%s",
		material.Title, text,
	)
	summary, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// extractText pulls printable text out of the stored file. Plain-text types
// are read directly; binary formats fall back to a printable-run scan, which
// is enough for the summariser to work with.
func (s *PipelineService) extractText(ctx context.Context, material *models.Material) (string, error) {
	reader, err := s.files.Get(ctx, material.StorageProvider, material.StorageKey)
	if err != nil {
		return "", fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, extractLimitBytes))
	if err != nil {
		return "", fmt.Errorf("read stored file: %w", err)
	}

	var text string
	if strings.HasPrefix(material.MimeType, "text/") || material.MimeType == "application/json" {
		text = string(raw)
	} else {
		text = printableRuns(raw)
	}

	if utf8.RuneCountInString(text) > summaryInputChars {
		runes := []rune(text)
		text = string(runes[:summaryInputChars])
	}
	return text, nil
}

// printableRuns keeps runs of printable ASCII of at least four characters,
// discarding binary noise between them.
func printableRuns(raw []byte) string {
	var b strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= 4 {
			b.Write(run)
			b.WriteByte(' ')
		}
		run = run[:0]
	}
	for _, c := range raw {
		if c >= 0x20 && c < 0x7f {
			run = append(run, c)
			continue
		}
		flush()
	}
	flush()
	return b.String()
}
