package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

// QuizRepository provides database access for quizzes and attempts.
type QuizRepository struct {
	db *sqlx.DB
}

// NewQuizRepository creates a new instance of QuizRepository.
func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

// Create inserts a generated quiz.
func (r *QuizRepository) Create(ctx context.Context, q *models.Quiz) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO quizzes (id, material_id, creator_id, difficulty, questions, created_at)
		VALUES (:id, :material_id, :creator_id, :difficulty, :questions, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, q); err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

// FindByID returns a quiz by identifier.
func (r *QuizRepository) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	const query = `SELECT id, material_id, creator_id, difficulty, questions, created_at FROM quizzes WHERE id = $1 LIMIT 1`
	var q models.Quiz
	if err := r.db.GetContext(ctx, &q, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find quiz: %w", err)
	}
	return &q, nil
}

// ListByMaterial returns quizzes generated for a material, newest first.
func (r *QuizRepository) ListByMaterial(ctx context.Context, materialID string) ([]models.Quiz, error) {
	const query = `SELECT id, material_id, creator_id, difficulty, questions, created_at FROM quizzes WHERE material_id = $1 ORDER BY created_at DESC`
	var list []models.Quiz
	if err := r.db.SelectContext(ctx, &list, query, materialID); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return list, nil
}

// DeleteByMaterial removes all quizzes for a material.
func (r *QuizRepository) DeleteByMaterial(ctx context.Context, materialID string) error {
	const query = `DELETE FROM quizzes WHERE material_id = $1`
	if _, err := r.db.ExecContext(ctx, query, materialID); err != nil {
		return fmt.Errorf("delete quizzes for material: %w", err)
	}
	return nil
}

// CreateAttempt inserts a scored quiz attempt.
func (r *QuizRepository) CreateAttempt(ctx context.Context, a *models.QuizAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.TakenAt.IsZero() {
		a.TakenAt = time.Now().UTC()
	}
	const query = `INSERT INTO quiz_attempts (id, quiz_id, user_id, answers, score, taken_at)
		VALUES (:id, :quiz_id, :user_id, :answers, :score, :taken_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create quiz attempt: %w", err)
	}
	return nil
}

// ListAttempts returns a user's attempts on a quiz, newest first.
func (r *QuizRepository) ListAttempts(ctx context.Context, quizID, userID string) ([]models.QuizAttempt, error) {
	const query = `SELECT id, quiz_id, user_id, answers, score, taken_at FROM quiz_attempts WHERE quiz_id = $1 AND user_id = $2 ORDER BY taken_at DESC`
	var list []models.QuizAttempt
	if err := r.db.SelectContext(ctx, &list, query, quizID, userID); err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	return list, nil
}
