package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
)

type quizRepository interface {
	Create(ctx context.Context, q *models.Quiz) error
	FindByID(ctx context.Context, id string) (*models.Quiz, error)
	ListByMaterial(ctx context.Context, materialID string) ([]models.Quiz, error)
	CreateAttempt(ctx context.Context, a *models.QuizAttempt) error
	ListAttempts(ctx context.Context, quizID, userID string) ([]models.QuizAttempt, error)
}

var _ quizRepository = (*repository.QuizRepository)(nil)

// QuizService generates multiple-choice quizzes from material summaries and
// scores submissions. Correct answers never leave the server before an
// attempt is recorded.
type QuizService struct {
	repo      quizRepository
	materials *MaterialService
	llm       textGenerator
	cfg       config.QuizConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuizService constructs a QuizService instance.
func NewQuizService(repo quizRepository, materials *MaterialService, generator textGenerator, cfg config.QuizConfig, validate *validator.Validate, logger *zap.Logger) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &QuizService{repo: repo, materials: materials, llm: generator, cfg: cfg, validator: validate, logger: logger}
}

// Generate builds a quiz over a ready material.
func (s *QuizService) Generate(ctx context.Context, claims *models.JWTClaims, req dto.GenerateQuizRequest) (*dto.QuizView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	if !difficulty.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown difficulty")
	}
	count := req.Count
	if count <= 0 {
		count = s.cfg.DefaultQuestions
	}
	if s.cfg.MaxQuestions > 0 && count > s.cfg.MaxQuestions {
		count = s.cfg.MaxQuestions
	}

	material, err := s.materials.Get(ctx, claims, req.MaterialID)
	if err != nil {
		return nil, err
	}
	if material.Status != models.MaterialStatusReady || material.Summary == "" {
		return nil, appErrors.ErrMaterialNotReady
	}

	questions, err := s.generateQuestions(ctx, material, count, difficulty)
	if err != nil {
		s.logger.Error("quiz generation failed", zap.String("material_id", material.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrAssistantUpstream.Code, appErrors.ErrAssistantUpstream.Status, "quiz generation is temporarily unavailable")
	}

	quiz := &models.Quiz{
		MaterialID: material.ID,
		CreatorID:  claims.UserID,
		Difficulty: difficulty,
		Questions:  questions,
	}
	if err := s.repo.Create(ctx, quiz); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store quiz")
	}

	view := dto.FromQuiz(quiz)
	return &view, nil
}

// Get returns a quiz in its student-facing shape, without answers.
func (s *QuizService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*dto.QuizView, error) {
	quiz, err := s.getQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	// Visibility follows the underlying material.
	if _, err := s.materials.Get(ctx, claims, quiz.MaterialID); err != nil {
		return nil, err
	}
	view := dto.FromQuiz(quiz)
	return &view, nil
}

// ListByMaterial returns the quizzes generated for a material.
func (s *QuizService) ListByMaterial(ctx context.Context, claims *models.JWTClaims, materialID string) ([]dto.QuizView, error) {
	if _, err := s.materials.Get(ctx, claims, materialID); err != nil {
		return nil, err
	}
	quizzes, err := s.repo.ListByMaterial(ctx, materialID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quizzes")
	}
	views := make([]dto.QuizView, len(quizzes))
	for i := range quizzes {
		views[i] = dto.FromQuiz(&quizzes[i])
	}
	return views, nil
}

// SubmitAttempt scores a submission and reveals per-question results.
func (s *QuizService) SubmitAttempt(ctx context.Context, claims *models.JWTClaims, quizID string, req dto.SubmitAttemptRequest) (*dto.AttemptResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attempt payload")
	}
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if _, err := s.materials.Get(ctx, claims, quiz.MaterialID); err != nil {
		return nil, err
	}
	if len(req.Answers) != len(quiz.Questions) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("expected %d answers", len(quiz.Questions)))
	}

	results := make([]dto.QuestionResult, len(quiz.Questions))
	correct := 0
	for i, question := range quiz.Questions {
		ok := req.Answers[i] == question.CorrectIndex
		if ok {
			correct++
		}
		results[i] = dto.QuestionResult{
			Correct:      ok,
			CorrectIndex: question.CorrectIndex,
			Explanation:  question.Explanation,
		}
	}
	score := float64(correct) / float64(len(quiz.Questions)) * 100

	attempt := &models.QuizAttempt{
		QuizID:  quiz.ID,
		UserID:  claims.UserID,
		Answers: models.AnswerList(req.Answers),
		Score:   score,
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attempt")
	}

	return &dto.AttemptResult{
		AttemptID: attempt.ID,
		Score:     score,
		Results:   results,
		TakenAt:   attempt.TakenAt,
	}, nil
}

// ListAttempts returns the caller's attempts on a quiz.
func (s *QuizService) ListAttempts(ctx context.Context, claims *models.JWTClaims, quizID string) ([]models.QuizAttempt, error) {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListAttempts(ctx, quiz.ID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attempts")
	}
	return attempts, nil
}

func (s *QuizService) getQuiz(ctx context.Context, id string) (*models.Quiz, error) {
	quiz, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	return quiz, nil
}

func (s *QuizService) generateQuestions(ctx context.Context, material *models.Material, count int, difficulty models.QuizDifficulty) (models.QuestionList, error) {
	prompt := fmt.Sprintf(`Generate %d multiple-choice questions of %s difficulty from the study material summary below.
Respond with a JSON array only, no prose. Each element must have the shape:
{"prompt": string, "options": [exactly 4 strings], "correct_index": int, "explanation": string}

Material %q:
%s`, count, difficulty, material.Title, material.Summary)

	raw, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	questions, err := parseQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("parse generated questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, errors.New("model returned no questions")
	}
	if len(questions) > count {
		questions = questions[:count]
	}
	return questions, nil
}

// parseQuestions decodes the model output, tolerating markdown code fences
// and leading prose around the JSON array.
func parseQuestions(raw string) (models.QuestionList, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	start := strings.IndexByte(cleaned, '[')
	end := strings.LastIndexByte(cleaned, ']')
	if start < 0 || end <= start {
		return nil, errors.New("no JSON array in model output")
	}

	var questions models.QuestionList
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &questions); err != nil {
		return nil, err
	}
	for i, q := range questions {
		if q.Prompt == "" || len(q.Options) < 2 {
			return nil, fmt.Errorf("question %d is malformed", i+1)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return nil, fmt.Errorf("question %d has an out-of-range answer", i+1)
		}
	}
	return questions, nil
}
