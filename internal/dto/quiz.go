package dto

import (
	"time"

	"github.com/studyhub-io/studyhub-api/internal/models"
)

// GenerateQuizRequest asks for a generated question set over a ready material.
type GenerateQuizRequest struct {
	MaterialID string                `json:"material_id" validate:"required"`
	Count      int                   `json:"count" validate:"omitempty,gt=0"`
	Difficulty models.QuizDifficulty `json:"difficulty" validate:"omitempty"`
}

// QuestionView is a question with the correct answer withheld.
type QuestionView struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// QuizView is the student-facing quiz shape.
type QuizView struct {
	ID         string                `json:"id"`
	MaterialID string                `json:"material_id"`
	Difficulty models.QuizDifficulty `json:"difficulty"`
	Questions  []QuestionView        `json:"questions"`
	CreatedAt  time.Time             `json:"created_at"`
}

// FromQuiz strips answers for presentation to quiz takers.
func FromQuiz(q *models.Quiz) QuizView {
	questions := make([]QuestionView, len(q.Questions))
	for i, question := range q.Questions {
		questions[i] = QuestionView{Prompt: question.Prompt, Options: question.Options}
	}
	return QuizView{
		ID:         q.ID,
		MaterialID: q.MaterialID,
		Difficulty: q.Difficulty,
		Questions:  questions,
		CreatedAt:  q.CreatedAt,
	}
}

// SubmitAttemptRequest carries the selected option index per question.
type SubmitAttemptRequest struct {
	Answers []int `json:"answers" validate:"required,min=1"`
}

// QuestionResult reveals correctness for one question after submission.
type QuestionResult struct {
	Correct      bool   `json:"correct"`
	CorrectIndex int    `json:"correct_index"`
	Explanation  string `json:"explanation,omitempty"`
}

// AttemptResult is the scored outcome of a submission.
type AttemptResult struct {
	AttemptID string           `json:"attempt_id"`
	Score     float64          `json:"score"`
	Results   []QuestionResult `json:"results"`
	TakenAt   time.Time        `json:"taken_at"`
}
